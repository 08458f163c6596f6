package tron

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 21)
	raw[0] = addressPrefix
	for i := 1; i < 21; i++ {
		raw[i] = byte(i * 7)
	}

	encoded, err := EncodeAddress(raw)
	if err != nil {
		t.Fatalf("编码地址失败: %v", err)
	}
	if encoded[0] != 'T' {
		t.Fatalf("主网地址应以 T 开头, 实际 %s", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("解码地址失败: %v", err)
	}
	if !bytes.Equal(raw, decoded) {
		t.Fatalf("往返结果不一致: %x != %x", raw, decoded)
	}
}

func TestDecodeKnownAddress(t *testing.T) {
	// USDT contract on mainnet.
	raw, err := DecodeAddress("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	if err != nil {
		t.Fatalf("已知地址应能解码: %v", err)
	}
	if len(raw) != 21 || raw[0] != addressPrefix {
		t.Fatalf("原始地址格式不正确: %x", raw)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not-base58-0OIl",
		"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u", // checksum broken
		"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", // bitcoin prefix
	}
	for _, addr := range cases {
		if ValidAddress(addr) {
			t.Fatalf("地址 %q 不应通过校验", addr)
		}
	}
}

func TestEncodeRejectsBadRaw(t *testing.T) {
	if _, err := EncodeAddress(make([]byte, 20)); err == nil {
		t.Fatal("长度不足 21 应报错")
	}
	raw := make([]byte, 21)
	raw[0] = 0x42
	if _, err := EncodeAddress(raw); err == nil {
		t.Fatal("前缀不是 0x41 应报错")
	}
}

func TestEVMAddress(t *testing.T) {
	raw := make([]byte, 21)
	raw[0] = addressPrefix
	raw[1] = 0xde
	raw[20] = 0xad
	encoded, err := EncodeAddress(raw)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	evm, err := EVMAddress(encoded)
	if err != nil {
		t.Fatalf("转换 EVM 地址失败: %v", err)
	}
	if !bytes.Equal(evm.Bytes(), raw[1:]) {
		t.Fatalf("EVM 地址应为去掉前缀的 20 字节: %x", evm)
	}
}
