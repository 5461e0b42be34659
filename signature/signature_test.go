package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/nexlead/prism/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000)

	got := signature.Sign(payload, secret, timestamp)

	// Compute expected HMAC-SHA256 independently.
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	expected := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event_id":"evt-1","type":"user.created"}`)
	secret := "whsec_roundtripsecret"
	timestamp := int64(1700000001)

	sig := signature.Sign(payload, secret, timestamp)
	if !signature.Verify(payload, secret, timestamp, sig) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"
	timestamp := int64(1700000002)

	sig := signature.Sign(payload, secret, timestamp)

	tampered := []byte(`{"original":false}`)
	if signature.Verify(tampered, secret, timestamp, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"data":"value"}`)
	timestamp := int64(1700000003)

	sig := signature.Sign(payload, "whsec_right", timestamp)
	if signature.Verify(payload, "whsec_wrong", timestamp, sig) {
		t.Error("Verify() returned true for wrong secret")
	}
}

func TestVerifyRequest(t *testing.T) {
	payload := []byte(`{"event_id":"evt-1"}`)
	secret := "whsec_reqsecret"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	sign := func(at time.Time) (string, string) {
		ts := at.Unix()
		return strconv.FormatInt(ts, 10), signature.Sign(payload, secret, ts)
	}

	t.Run("fresh delivery passes", func(t *testing.T) {
		ts, sig := sign(now.Add(-time.Minute))
		if err := signature.VerifyRequest(payload, secret, ts, sig, tolerance, now); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("boundary passes", func(t *testing.T) {
		ts, sig := sign(now.Add(-tolerance))
		if err := signature.VerifyRequest(payload, secret, ts, sig, tolerance, now); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("stale delivery rejected", func(t *testing.T) {
		ts, sig := sign(now.Add(-tolerance - time.Second))
		err := signature.VerifyRequest(payload, secret, ts, sig, tolerance, now)
		if !errors.Is(err, signature.ErrStaleTimestamp) {
			t.Fatalf("expected ErrStaleTimestamp, got %v", err)
		}
	})

	t.Run("future drift rejected", func(t *testing.T) {
		ts, sig := sign(now.Add(tolerance + time.Second))
		err := signature.VerifyRequest(payload, secret, ts, sig, tolerance, now)
		if !errors.Is(err, signature.ErrStaleTimestamp) {
			t.Fatalf("expected ErrStaleTimestamp, got %v", err)
		}
	})

	t.Run("garbage timestamp rejected", func(t *testing.T) {
		err := signature.VerifyRequest(payload, secret, "not-a-number", "v1=00", tolerance, now)
		if !errors.Is(err, signature.ErrBadTimestamp) {
			t.Fatalf("expected ErrBadTimestamp, got %v", err)
		}
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		ts, _ := sign(now)
		err := signature.VerifyRequest(payload, secret, ts, "v1=deadbeef", tolerance, now)
		if !errors.Is(err, signature.ErrMismatch) {
			t.Fatalf("expected ErrMismatch, got %v", err)
		}
	})
}

func TestGenerateSecret(t *testing.T) {
	a := signature.GenerateSecret()
	b := signature.GenerateSecret()

	if len(a) != len("whsec_")+64 {
		t.Fatalf("unexpected secret length %d", len(a))
	}
	if a[:6] != "whsec_" {
		t.Fatalf("missing prefix: %q", a[:6])
	}
	if a == b {
		t.Fatal("secrets must be unique")
	}
}
