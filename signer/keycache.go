package signer

import (
	"crypto/sha256"
	"strings"
	"sync"
	"time"
)

type derivedKey struct {
	accessKeyID string
	secretHash  [sha256.Size]byte
	date        time.Time
	key         []byte
}

// keyCache holds V4 signing keys per region/product. An entry is only reused
// for the same access key, the same secret and the same UTC day. It is safe
// for concurrent use.
type keyCache struct {
	mu     sync.RWMutex
	values map[string]derivedKey
}

func newKeyCache() *keyCache {
	return &keyCache{values: make(map[string]derivedKey)}
}

func lookupKey(region, product string) string {
	var b strings.Builder
	b.Grow(len(region) + len(product) + 1)
	b.WriteString(region)
	b.WriteByte('/')
	b.WriteString(product)
	return b.String()
}

func isSameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// derive returns the cached signing key or derives and stores a fresh one.
func (c *keyCache) derive(accessKeyID, secret, region, product string, t SigningTime) []byte {
	k := lookupKey(region, product)
	sh := sha256.Sum256([]byte(secret))

	c.mu.RLock()
	entry, ok := c.values[k]
	c.mu.RUnlock()
	if ok && entry.accessKeyID == accessKeyID && entry.secretHash == sh && isSameDay(entry.date, t.Time) {
		return entry.key
	}

	key := DeriveKeyV4(secret, region, product, t)

	c.mu.Lock()
	c.values[k] = derivedKey{accessKeyID: accessKeyID, secretHash: sh, date: t.Time, key: key}
	c.mu.Unlock()
	return key
}
