// SPDX-License-Identifier: ice License 1.0

package query

import "sync"

var (
	globalDB struct {
		Client *dbClient
		Once   sync.Once
	}
)

// MustInit opens the relay's embedded store at url, creating the schema if
// it does not already exist. Subsequent calls are no-ops: the first call
// wins for the lifetime of the process. Defaults to an in-memory database
// when url is empty, which is convenient for tests.
func MustInit(url ...string) {
	target := ":memory:"

	if len(url) > 0 && url[0] != "" {
		target = url[0]
	}

	globalDB.Once.Do(func() {
		globalDB.Client = openDatabase(target, true)
	})
}

// db returns the process-wide store handle, panicking if MustInit was
// never called. Every other non-test file in this package reaches the
// database exclusively through db(), so the relay never opens a second
// handle; the tests and benchmarks open their own via openDatabase.
func db() *dbClient {
	if globalDB.Client == nil {
		panic("query.MustInit was never called")
	}

	return globalDB.Client
}
