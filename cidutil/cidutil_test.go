package cidutil

import (
	"strings"
	"testing"
)

func TestCIDDeterministic(t *testing.T) {
	a := CIDv1RawBlake3([]byte("hello"))
	b := CIDv1RawBlake3([]byte("hello"))
	if a == "" || a != b {
		t.Fatalf("CID not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "b") {
		t.Fatalf("expected base32 CIDv1, got %q", a)
	}
}

func TestCIDDistinguishesContent(t *testing.T) {
	if CIDv1RawBlake3([]byte("a")) == CIDv1RawBlake3([]byte("b")) {
		t.Fatal("distinct content produced the same CID")
	}
}

func TestCIDRoundTripsThroughParse(t *testing.T) {
	c, err := CIDv1RawBlake3CID([]byte("parse me"))
	if err != nil {
		t.Fatalf("CIDv1RawBlake3CID: %v", err)
	}
	if c.String() != CIDv1RawBlake3([]byte("parse me")) {
		t.Fatal("string forms disagree")
	}
}
