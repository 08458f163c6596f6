package tron

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// addressPrefix is the byte prepended to the 20-byte account hash on TRON
// mainnet and testnets alike.
const addressPrefix = 0x41

var (
	// ErrInvalidAddress signals a malformed base58check address.
	ErrInvalidAddress = errors.New("tron: invalid address")
)

// DecodeAddress turns a base58check address (T...) into its raw 21-byte
// form (0x41 prefix + 20-byte account hash).
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	if len(raw) != 25 || raw[0] != addressPrefix {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	payload, checksum := raw[:21], raw[21:]
	if !bytes.Equal(checksum, addressChecksum(payload)) {
		return nil, fmt.Errorf("%w: bad checksum in %s", ErrInvalidAddress, addr)
	}
	out := make([]byte, 21)
	copy(out, payload)
	return out, nil
}

// EncodeAddress turns a raw 21-byte address into base58check form.
func EncodeAddress(raw []byte) (string, error) {
	if len(raw) != 21 || raw[0] != addressPrefix {
		return "", fmt.Errorf("%w: raw address must be 21 bytes with 0x41 prefix", ErrInvalidAddress)
	}
	buf := make([]byte, 0, 25)
	buf = append(buf, raw...)
	buf = append(buf, addressChecksum(raw)...)
	return base58.Encode(buf), nil
}

// ValidAddress reports whether addr is a well-formed base58check address.
func ValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// AddressFromPublicKey derives the base58check address for a secp256k1
// public key the same way the chain does: keccak256 of the uncompressed
// key body, last 20 bytes, 0x41 prefix.
func AddressFromPublicKey(pub *ecdsa.PublicKey) (string, error) {
	uncompressed := crypto.FromECDSAPub(pub)
	if len(uncompressed) != 65 {
		return "", errors.New("tron: unexpected public key encoding")
	}
	hash := crypto.Keccak256(uncompressed[1:])
	raw := make([]byte, 21)
	raw[0] = addressPrefix
	copy(raw[1:], hash[12:])
	return EncodeAddress(raw)
}

// EVMAddress converts a base58check address to the 20-byte form used in
// ABI-encoded call parameters.
func EVMAddress(addr string) (common.Address, error) {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw[1:]), nil
}

func addressChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
