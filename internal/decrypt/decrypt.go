// Package decrypt is Component F: AES-128-CBC segment decryption with a
// per-playlist key cache keyed by the key's absolute URI.
package decrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"sync"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
	"github.com/justchokingaround/animepahe-dl/internal/playlist"
)

// KeyFetcher fetches the raw key bytes for a key URI, typically
// (*hostclient.Client).GetBytes.
type KeyFetcher func(ctx context.Context, keyURI string) ([]byte, error)

// KeyCache memoizes fetched AES keys by URI so a run of segments sharing an
// #EXT-X-KEY only fetches it once.
type KeyCache struct {
	fetch KeyFetcher

	mu   sync.Mutex
	keys map[string][]byte
}

// NewKeyCache builds a cache that uses fetch to retrieve keys on first use.
func NewKeyCache(fetch KeyFetcher) *KeyCache {
	return &KeyCache{fetch: fetch, keys: make(map[string][]byte)}
}

func (c *KeyCache) get(ctx context.Context, uri string) ([]byte, error) {
	c.mu.Lock()
	if key, ok := c.keys[uri]; ok {
		c.mu.Unlock()
		return key, nil
	}
	c.mu.Unlock()

	key, err := c.fetch(ctx, uri)
	if err != nil {
		return nil, &animeerrors.DecryptionDetailError{Reason: "key fetch failed: " + err.Error()}
	}
	if len(key) != 16 {
		return nil, &animeerrors.DecryptionDetailError{Reason: "key is not 16 bytes"}
	}

	c.mu.Lock()
	c.keys[uri] = key
	c.mu.Unlock()
	return key, nil
}

// Segment decrypts body into a new buffer when seg.Key indicates AES-128
// encryption, returning the plaintext with PKCS#7 padding stripped. A nil Key, or a
// Key whose Method is not AES-128, returns body unchanged.
func Segment(ctx context.Context, cache *KeyCache, seg playlist.Segment, body []byte) ([]byte, error) {
	if seg.Key == nil || seg.Key.Method != playlist.KeyMethodAES128 {
		return body, nil
	}
	if len(body) == 0 {
		return body, nil
	}

	key, err := cache.get(ctx, seg.Key.URI)
	if err != nil {
		return nil, err
	}
	if len(seg.Key.IV) != aes.BlockSize {
		return nil, &animeerrors.DecryptionDetailError{SegmentIndex: seg.Sequence, Reason: "IV is not 16 bytes"}
	}
	if len(body)%aes.BlockSize != 0 {
		return nil, &animeerrors.DecryptionDetailError{SegmentIndex: seg.Sequence, Reason: "ciphertext not block aligned"}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &animeerrors.DecryptionDetailError{SegmentIndex: seg.Sequence, Reason: err.Error()}
	}
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, seg.Key.IV).CryptBlocks(plaintext, body)

	return unpadPKCS7(plaintext, seg.Sequence)
}

func unpadPKCS7(data []byte, segmentIndex int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > len(data) || padding > aes.BlockSize {
		return nil, &animeerrors.DecryptionDetailError{SegmentIndex: segmentIndex, Reason: "invalid PKCS#7 padding"}
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, &animeerrors.DecryptionDetailError{SegmentIndex: segmentIndex, Reason: "invalid PKCS#7 padding bytes"}
		}
	}
	return data[:len(data)-padding], nil
}
