// Package signature provides HMAC-SHA256 webhook verification with a replay
// window. The scheme signs "{timestamp}.{payload}" and encodes the result as
// "v1=<hex>", so rotating the scheme later only needs a new version prefix.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Verification errors. ErrStaleTimestamp covers both past and future drift
// outside the tolerance window.
var (
	ErrBadTimestamp   = errors.New("signature: timestamp is not a unix time")
	ErrStaleTimestamp = errors.New("signature: timestamp outside replay window")
	ErrMismatch       = errors.New("signature: signature mismatch")
)

// Sign generates the HMAC-SHA256 signature for the given payload.
// The content to sign is "{timestamp}.{payload}".
// Returns a versioned signature in the format "v1=<hex>".
func Sign(payload []byte, secret string, timestamp int64) string {
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the payload, secret, and timestamp.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyRequest validates a webhook delivery end to end: the timestamp
// header must parse as unix seconds, fall within tolerance of now, and the
// signature must match. Freshness is checked before the MAC so a replayed
// capture fails fast without touching the secret.
func VerifyRequest(payload []byte, secret, timestamp, sig string, tolerance time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}

	drift := now.Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return ErrStaleTimestamp
	}

	if !Verify(payload, secret, ts, sig) {
		return ErrMismatch
	}

	return nil
}
