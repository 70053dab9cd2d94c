package decrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/justchokingaround/animepahe-dl/internal/playlist"
)

func encryptFixture(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), make([]byte, padding)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher() error = %v", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func TestSegmentDecryptsAndUnpads(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	rand.Read(key)
	rand.Read(iv)
	plaintext := []byte("hello hls segment body")
	ciphertext := encryptFixture(t, key, iv, plaintext)

	cache := NewKeyCache(func(ctx context.Context, uri string) ([]byte, error) {
		return key, nil
	})
	seg := playlist.Segment{
		Sequence: 0,
		Key:      &playlist.Key{Method: playlist.KeyMethodAES128, URI: "https://host/key", IV: iv},
	}
	out, err := Segment(context.Background(), cache, seg, ciphertext)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if string(out) != string(plaintext) {
		t.Fatalf("Segment() = %q, want %q", out, plaintext)
	}
}

func TestSegmentPassesThroughUnencrypted(t *testing.T) {
	cache := NewKeyCache(func(ctx context.Context, uri string) ([]byte, error) { return nil, nil })
	out, err := Segment(context.Background(), cache, playlist.Segment{}, []byte("raw"))
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if string(out) != "raw" {
		t.Fatalf("Segment() = %q, want raw", out)
	}
}

func TestSegmentRejectsInvalidPadding(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	body := make([]byte, 32) // garbage, block-aligned but not valid padding
	cache := NewKeyCache(func(ctx context.Context, uri string) ([]byte, error) { return key, nil })
	seg := playlist.Segment{Key: &playlist.Key{Method: playlist.KeyMethodAES128, URI: "k", IV: iv}}
	body[31] = 0 // all-zero ciphertext under an all-zero key does not decrypt to a valid PKCS#7 padding byte
	_, err := Segment(context.Background(), cache, seg, body)
	if err == nil {
		t.Fatal("expected error for invalid padding")
	}
}

func TestKeyCacheFetchesOnce(t *testing.T) {
	calls := 0
	cache := NewKeyCache(func(ctx context.Context, uri string) ([]byte, error) {
		calls++
		return make([]byte, 16), nil
	})
	if _, err := cache.get(context.Background(), "https://host/key"); err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if _, err := cache.get(context.Background(), "https://host/key"); err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
}
