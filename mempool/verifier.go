package mempool

import (
	"encoding/hex"

	"github.com/gitzhang10/pohchain/sign"
)

// Verifier decides whether a transaction carries a valid signature.
type Verifier interface {
	Verify(tx *Transaction) bool
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(tx *Transaction) bool

func (f VerifierFunc) Verify(tx *Transaction) bool { return f(tx) }

// NonEmptySignature only checks that a signature is present.
var NonEmptySignature Verifier = VerifierFunc(func(tx *Transaction) bool {
	return len(tx.Signature) > 0
})

// SchnorrVerifier checks a Schnorr signature over the unsigned fields. The
// sender is the hex encoded public key.
var SchnorrVerifier Verifier = VerifierFunc(func(tx *Transaction) bool {
	if len(tx.Signature) == 0 {
		return false
	}
	pub, err := hex.DecodeString(tx.Sender)
	if err != nil {
		return false
	}
	ok, err := sign.VerifySchnorr(pub, tx.SigningBytes(), tx.Signature)
	return err == nil && ok
})

// VerifierByName maps a signature scheme name to its verifier.
func VerifierByName(name string) (Verifier, bool) {
	switch name {
	case "", "placeholder":
		return NonEmptySignature, true
	case "schnorr":
		return SchnorrVerifier, true
	}
	return nil, false
}

// SignTransaction fills the signature of tx using the binary private key.
func SignTransaction(priv []byte, tx *Transaction) error {
	sig, err := sign.SignSchnorr(priv, tx.SigningBytes())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}
