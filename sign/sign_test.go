package sign

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSumConcatenates(t *testing.T) {
	a := Sum([]byte("ab"), []byte("cd"))
	b := Sum([]byte("abcd"))
	if a != b {
		t.Fatal("Sum should hash the concatenation of its parts")
	}
	if a.IsZero() {
		t.Fatal("digest of data should not be zero")
	}
}

func TestHashText(t *testing.T) {
	h := Sum([]byte("poh"))
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	var got Hash
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %s, want %s", got, h)
	}
	if err := got.UnmarshalText([]byte("abcd")); err == nil {
		t.Fatal("short hex should be rejected")
	}
}

func TestSchnorr(t *testing.T) {
	priv, pub := GenSchnorrKeys()
	derived, err := PublicFromPrivate(priv)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(derived, pub) {
		t.Fatal("derived public key does not match")
	}

	msg := []byte("transfer 10")
	sig, err := SignSchnorr(priv, msg)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifySchnorr(pub, msg, sig)
	if err != nil || !ok {
		t.Fatalf("valid signature rejected: %v", err)
	}
	ok, _ = VerifySchnorr(pub, []byte("transfer 11"), sig)
	if ok {
		t.Fatal("signature over another message accepted")
	}
	if _, err := VerifySchnorr(nil, msg, sig); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
