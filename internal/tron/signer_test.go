package tron

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestNewSignerDerivesAddress(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}
	if !ValidAddress(signer.Address()) {
		t.Fatalf("派生地址应合法: %s", signer.Address())
	}

	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}
	want, err := AddressFromPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("派生地址失败: %v", err)
	}
	if signer.Address() != want {
		t.Fatalf("地址不一致: %s != %s", signer.Address(), want)
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("zz"); err == nil {
		t.Fatal("非法私钥应报错")
	}
}

func TestSignFillsTxIDAndSignature(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}

	tx := &Transaction{RawDataHex: "0a0255ea220845"}
	if err := signer.Sign(tx); err != nil {
		t.Fatalf("签名失败: %v", err)
	}

	raw, _ := hex.DecodeString(tx.RawDataHex)
	hash := sha256.Sum256(raw)
	if tx.TxID != hex.EncodeToString(hash[:]) {
		t.Fatalf("txID 应为 raw_data 的 sha256: %s", tx.TxID)
	}
	if len(tx.Signature) != 1 {
		t.Fatalf("应有一个签名, 实际 %d", len(tx.Signature))
	}
	sig, err := hex.DecodeString(tx.Signature[0])
	if err != nil || len(sig) != 65 {
		t.Fatalf("签名应为 65 字节十六进制: %v", err)
	}
}

func TestSignRejectsTxIDMismatch(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}

	tx := &Transaction{TxID: "deadbeef", RawDataHex: "0a0255ea220845"}
	if err := signer.Sign(tx); !errors.Is(err, ErrTxIDMismatch) {
		t.Fatalf("txID 不匹配应拒绝签名, 实际 %v", err)
	}
}

func TestSignRejectsEmptyTransaction(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}
	if err := signer.Sign(&Transaction{}); err == nil {
		t.Fatal("空交易应报错")
	}
}
