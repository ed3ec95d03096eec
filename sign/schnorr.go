package sign

import (
	"encoding/hex"
	"errors"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/key"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

var ErrEmptyKey = errors.New("empty key")

// GenSchnorrKeys creates a new key pair on edwards25519 and returns
// the binary encoded private and public key.
func GenSchnorrKeys() ([]byte, []byte) {
	pair := key.NewKeyPair(suite)
	priv, err := pair.Private.MarshalBinary()
	if err != nil {
		panic(err)
	}
	pub, err := pair.Public.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return priv, pub
}

// PublicFromPrivate derives the binary encoded public key of priv.
func PublicFromPrivate(priv []byte) ([]byte, error) {
	scalar, err := decodeScalar(priv)
	if err != nil {
		return nil, err
	}
	return suite.Point().Mul(scalar, nil).MarshalBinary()
}

// SignSchnorr signs msg with the binary encoded private key.
func SignSchnorr(priv []byte, msg []byte) ([]byte, error) {
	scalar, err := decodeScalar(priv)
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(suite, scalar, msg)
}

// VerifySchnorr checks sig over msg against the binary encoded public key.
func VerifySchnorr(pub []byte, msg, sig []byte) (bool, error) {
	if len(pub) == 0 {
		return false, ErrEmptyKey
	}
	point := suite.Point()
	if err := point.UnmarshalBinary(pub); err != nil {
		return false, err
	}
	if err := schnorr.Verify(suite, point, msg, sig); err != nil {
		return false, nil
	}
	return true, nil
}

// KeyID returns the identifier a validator is known by: the hex of its public key.
func KeyID(pub []byte) string {
	return hex.EncodeToString(pub)
}

func decodeScalar(priv []byte) (kyber.Scalar, error) {
	if len(priv) == 0 {
		return nil, ErrEmptyKey
	}
	scalar := suite.Scalar()
	if err := scalar.UnmarshalBinary(priv); err != nil {
		return nil, err
	}
	return scalar, nil
}
