package tron

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrTxIDMismatch signals that the node-supplied txID does not match
	// the hash of the raw transaction we are about to sign.
	ErrTxIDMismatch = errors.New("tron: txID does not match raw_data hash")
)

// Signer holds the source wallet key and signs transaction hashes.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewSigner parses a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	addr, err := AddressFromPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, address: addr}, nil
}

// Address returns the base58check address derived from the key.
func (s *Signer) Address() string {
	return s.address
}

// Sign appends a signature over the transaction hash. The node already
// told us the txID; recomputing sha256(raw_data_hex) and comparing guards
// against a provider returning a transaction we did not ask for.
func (s *Signer) Sign(tx *Transaction) error {
	if tx == nil || tx.RawDataHex == "" {
		return errors.New("tron: nothing to sign")
	}

	rawData, err := hex.DecodeString(tx.RawDataHex)
	if err != nil {
		return fmt.Errorf("decode raw_data_hex: %w", err)
	}

	hash := sha256.Sum256(rawData)
	if tx.TxID != "" && tx.TxID != hex.EncodeToString(hash[:]) {
		return ErrTxIDMismatch
	}
	tx.TxID = hex.EncodeToString(hash[:])

	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}

	tx.Signature = append(tx.Signature, hex.EncodeToString(sig))
	return nil
}
