// Package signature provides the cryptographic primitives the blockchain
// needs: key generation, DER-encoded ECDSA over secp256k1 with enforced
// low-S normalization, double-SHA-256 hashing, and base58check addressing.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"
)

// ZeroHash represents the all-zero hash used for the genesis block's
// previous-hash field.
var ZeroHash = make([]byte, 32)

// AddressVersion is the version byte prefixed to the ripemd160(sha256(pubkey))
// payload before base58check encoding (spec §6).
const AddressVersion = 0x00

// halfOrder is N/2 for secp256k1, the low-S cutoff (spec §4.1).
var halfOrder = new(big.Int).Rsh(secp256k1.S256().N, 1)

// =============================================================================

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 public key in its compressed serialized form,
// the form used throughout the wire protocol and in TxInput.Pubkey.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GenerateKeyPair constructs a new random keypair and its derived address.
func GenerateKeyPair() (PrivateKey, PublicKey, string, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, PublicKey{}, "", err
	}

	priv := PrivateKey{key: key}
	pub := PublicKey{key: key.PubKey()}

	return priv, pub, pub.Address(), nil
}

// PrivateKeyFromECDSA adapts a standard library key, for compatibility with
// key material loaded through `crypto/ecdsa`-based key stores.
func PrivateKeyFromECDSA(key *ecdsa.PrivateKey) PrivateKey {
	priv := secp256k1.PrivKeyFromBytes(key.D.Bytes())
	return PrivateKey{key: priv}
}

// Bytes returns the raw 32-byte scalar for the private key, for serialization
// to an opaque KeyStore.
func (p PrivateKey) Bytes() []byte {
	return p.key.Serialize()
}

// PrivateKeyFromBytes reconstructs a private key from its raw scalar.
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	if len(b) != 32 {
		return PrivateKey{}, errors.New("signature: private key must be 32 bytes")
	}
	return PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Public returns the public key associated with this private key.
func (p PrivateKey) Public() PublicKey {
	return PublicKey{key: p.key.PubKey()}
}

// Bytes returns the 33-byte compressed serialized public key.
func (p PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// PublicKeyFromBytes parses a compressed public key as found in TxInput.Pubkey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{key: key}, nil
}

// Address derives the base58check(version || ripemd160(sha256(pubkey)))
// address for this public key (spec §4.1, §6).
func (p PublicKey) Address() string {
	return AddressFromPubKeyHash(PubKeyHash(p.Bytes()))
}

// =============================================================================

// Hash256 returns the double-SHA-256 of data (spec §3, §6).
func Hash256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Hash256Hex is a convenience wrapper returning the hex-encoded double hash.
func Hash256Hex(data []byte) string {
	return hex.EncodeToString(Hash256(data))
}

// PubKeyHash computes ripemd160(sha256(pubkey)), the 20-byte payload
// addresses are built from.
func PubKeyHash(pubkey []byte) []byte {
	sh := sha256.Sum256(pubkey)
	r := ripemd160.New()
	r.Write(sh[:])
	return r.Sum(nil)
}

// AddressFromPubKeyHash base58check-encodes a 20-byte pubkey hash with the
// node's address version byte.
func AddressFromPubKeyHash(pkHash []byte) string {
	return base58.CheckEncode(pkHash, AddressVersion)
}

// PubKeyHashFromAddress decodes a base58check address back to its 20-byte
// pubkey hash, validating the version byte and checksum.
func PubKeyHashFromAddress(address string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return nil, err
	}
	if version != AddressVersion {
		return nil, errors.New("signature: unknown address version")
	}
	if len(payload) != ripemd160.Size {
		return nil, errors.New("signature: malformed address payload")
	}
	return payload, nil
}

// =============================================================================

// Sign produces a DER-encoded, low-S-normalized signature over a 32-byte
// message hash (spec §4.1). The caller is expected to have already computed
// the sighash (§4.3) with Hash256.
func Sign(priv PrivateKey, msgHash []byte) ([]byte, error) {
	if len(msgHash) != 32 {
		return nil, errors.New("signature: message hash must be 32 bytes")
	}

	sig := dcrecdsa.Sign(priv.key, msgHash)

	// dcrd's ecdsa.Sign already returns the low-S form, but the invariant is
	// enforced explicitly and independently of the library's behavior so a
	// future library swap can't silently reintroduce malleability.
	return normalizeLowS(sig.Serialize())
}

// Verify checks a DER-encoded signature over a 32-byte message hash, and
// rejects any signature whose S value is not in the lower half of the curve
// order (anti-malleability, spec §4.1).
func Verify(pub PublicKey, msgHash []byte, derSig []byte) (bool, error) {
	if len(msgHash) != 32 {
		return false, errors.New("signature: message hash must be 32 bytes")
	}

	r, s, err := parseDER(derSig)
	if err != nil {
		return false, err
	}

	if s.Cmp(halfOrder) > 0 {
		return false, errors.New("signature: high-S signature rejected")
	}

	sig := dcrecdsa.NewSignature(sigScalar(r), sigScalar(s))
	return sig.Verify(msgHash, pub.key), nil
}

// =============================================================================

// normalizeLowS parses a DER signature and, if its S value is in the upper
// half of the curve order, replaces S with N-S and re-encodes, enforcing the
// canonical low-S form before the signature is ever handed to a caller.
func normalizeLowS(der []byte) ([]byte, error) {
	r, s, err := parseDER(der)
	if err != nil {
		return nil, err
	}

	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(secp256k1.S256().N, s)
	}

	sig := dcrecdsa.NewSignature(sigScalar(r), sigScalar(s))
	return sig.Serialize(), nil
}

func sigScalar(v *big.Int) *secp256k1.ModNScalar {
	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(v.Bytes())
	return &scalar
}

// parseDER extracts the (r, s) values from a DER-encoded ECDSA signature
// without enforcing low-S, so callers can apply their own policy.
func parseDER(der []byte) (*big.Int, *big.Int, error) {
	sig, err := dcrecdsa.ParseDERSignature(der)
	if err != nil {
		return nil, nil, fmt.Errorf("signature: parse der: %w", err)
	}

	r := sig.R()
	s := sig.S()
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	return new(big.Int).SetBytes(rBytes[:]), new(big.Int).SetBytes(sBytes[:]), nil
}
