// SPDX-License-Identifier: ice License 1.0

package model

// MatchAny is the Filter Matcher: it returns true iff any filter in fs
// matches ev, with identical semantics to the SQL query path (ids/authors/
// kinds membership, since/until bounds, #X tag predicates). limit is
// intentionally not consulted here — streaming broadcast is unbounded.
func MatchAny(fs Filters, ev *Event) bool {
	for _, f := range fs {
		if f.Matches(&ev.Event) {
			return true
		}
	}

	return false
}

// MatchesChangeFeed reports whether an event satisfies a change-feed
// subscription's optional kind/author narrowing. Unlike MatchAny, "since"
// never applies here — it only bounds an initial replay, never live
// delivery.
func MatchesChangeFeed(kinds []int, authors []string, ev *Event) bool {
	if len(kinds) > 0 && !containsInt(kinds, ev.Kind) {
		return false
	}
	if len(authors) > 0 && !containsString(authors, ev.PubKey) {
		return false
	}

	return true
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}

	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}

	return false
}
