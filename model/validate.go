// SPDX-License-Identifier: ice License 1.0

package model

import (
	"crypto/sha256"
	"encoding/hex"
	stdlibtime "time"

	"github.com/gookit/goutil/errorx"
)

const futureToleranceSeconds = 900

var hexDigits = "0123456789abcdef"

func isLowerHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !containsByte(hexDigits, s[i]) {
			return false
		}
	}

	return true
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}

	return false
}

// Validate runs the structural checks, identity-hash recomputation and
// signature verification the Ingest Pipeline requires before an Event may
// be classified and stored. It is pure: no I/O, no clock reads beyond
// time.Now for the future-timestamp bound. Every rejection reason is
// prefixed "invalid:" per the error-handling design.
func Validate(e *Event) error {
	if !isLowerHex(e.ID, 64) {
		return errorx.New("invalid: id is not 64 lowercase hex characters")
	}
	if !isLowerHex(e.PubKey, 64) {
		return errorx.New("invalid: pubkey is not 64 lowercase hex characters")
	}
	if !isLowerHex(e.Sig, 128) {
		return errorx.New("invalid: sig is not 128 lowercase hex characters")
	}
	if e.Kind < 0 || e.Kind > 65535 {
		return errorx.New("invalid: kind out of range [0, 65535]")
	}
	for _, tag := range e.Tags {
		if len(tag) < 1 {
			return errorx.New("invalid: tag with zero elements")
		}
	}
	if ClassifyKind(e.Kind) == ClassInvalid {
		return errorx.Newf("invalid: kind %d does not belong to any retention class", e.Kind)
	}

	hash := sha256.Sum256(e.Serialize())
	if id := hex.EncodeToString(hash[:]); id != e.ID {
		return errorx.Newf("invalid: id does not match sha256(canonical serialization): got %v want %v", e.ID, id)
	}

	ok, err := e.CheckSignature()
	if err != nil {
		return errorx.Withf(err, "invalid: failed to check signature")
	}
	if !ok {
		return errorx.New("invalid: signature does not verify")
	}

	if int64(e.CreatedAt) > stdlibtime.Now().Unix()+futureToleranceSeconds {
		return errorx.New("invalid: created_at is too far in the future")
	}

	return nil
}
