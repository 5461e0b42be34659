package ratelimit

import "testing"

func TestAllowBurstThenDeny(t *testing.T) {
	l := New()

	for i := range 5 {
		if !l.Allow("src", 5) {
			t.Fatalf("request %d denied within burst", i)
		}
	}

	if l.Allow("src", 5) {
		t.Fatal("expected denial after burst exhausted")
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	l := New()

	for range 3 {
		l.Allow("a", 3)
	}
	if l.Allow("a", 3) {
		t.Fatal("source a should be exhausted")
	}
	if !l.Allow("b", 3) {
		t.Fatal("source b must have its own bucket")
	}
}

func TestZeroRateIsUnlimited(t *testing.T) {
	l := New()
	for range 1000 {
		if !l.Allow("src", 0) {
			t.Fatal("zero rate must never deny")
		}
	}
}

func TestReset(t *testing.T) {
	l := New()

	for range 2 {
		l.Allow("src", 2)
	}
	if l.Allow("src", 2) {
		t.Fatal("expected exhaustion")
	}

	l.Reset("src")
	if !l.Allow("src", 2) {
		t.Fatal("reset must refill the bucket")
	}
}
