package cipher

import (
	"bytes"
	"testing"
)

func TestPlaintextCodecPassthrough(t *testing.T) {
	c := PlaintextCodec{}
	stored, err := c.Encode("hunter2")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if stored != "hunter2" {
		t.Fatalf("plaintext codec must store verbatim, got %q", stored)
	}
	out, err := c.Decode(stored)
	if err != nil || out != "hunter2" {
		t.Fatalf("decode failed: %q, %v", out, err)
	}
}

func TestAESGCMCodecRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewAESGCMCodec(key)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	stored, err := c.Encode("s3cr3t-value")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if stored == "s3cr3t-value" {
		t.Fatalf("secret stored in the clear")
	}

	out, err := c.Decode(stored)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != "s3cr3t-value" {
		t.Fatalf("round trip mismatch: %q", out)
	}
}

func TestAESGCMCodecRejectsBadKeyAndCiphertext(t *testing.T) {
	if _, err := NewAESGCMCodec([]byte("short")); err == nil {
		t.Fatalf("expected error for short key")
	}

	c, err := NewAESGCMCodec(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if _, err := c.Decode("not-base64!!!"); err == nil {
		t.Fatalf("expected error for invalid encoding")
	}
	if _, err := c.Decode("YWJj"); err == nil {
		t.Fatalf("expected error for truncated ciphertext")
	}

	other, err := NewAESGCMCodec(bytes.Repeat([]byte{0x02}, 32))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	stored, err := c.Encode("value")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := other.Decode(stored); err == nil {
		t.Fatalf("expected decryption failure with wrong key")
	}
}
