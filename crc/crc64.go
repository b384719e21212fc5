// Package crc implements the CRC-64/ECMA accumulator used for end to end
// transfer integrity, including combining checksums of adjacent ranges.
package crc

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc64"
	"strconv"
	"strings"
)

// ECMA is the reversed ECMA-182 polynomial.
const ECMA = crc64.ECMA

// Size of a CRC-64 checksum in bytes.
const Size = 8

var ecmaTable = crc64.MakeTable(crc64.ECMA)

// CRC64 is a streaming CRC-64/ECMA accumulator. The zero value is not usable;
// use New or NewECMA. It is not safe for concurrent use.
type CRC64 struct {
	initial uint64
	crc     uint64
}

var _ hash.Hash64 = (*CRC64)(nil)

// New returns an accumulator seeded with initial. A non-zero seed continues
// a checksum over bytes already seen.
func New(initial uint64) *CRC64 {
	return &CRC64{initial: initial, crc: initial}
}

// NewECMA returns a fresh accumulator.
func NewECMA() *CRC64 {
	return New(0)
}

// Update folds p into the running value.
func (c *CRC64) Update(p []byte) {
	c.crc = crc64.Update(c.crc, ecmaTable, p)
}

// Write implements io.Writer. It never fails.
func (c *CRC64) Write(p []byte) (int, error) {
	c.Update(p)
	return len(p), nil
}

// Sum64 returns the running value.
func (c *CRC64) Sum64() uint64 { return c.crc }

// Sum appends the big-endian running value to b.
func (c *CRC64) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, c.crc)
}

// Final returns the running value as 8 little-endian bytes.
func (c *CRC64) Final() []byte {
	return binary.LittleEndian.AppendUint64(make([]byte, 0, Size), c.crc)
}

// Reset returns to the initial value.
func (c *CRC64) Reset() { c.crc = c.initial }

func (c *CRC64) Size() int      { return Size }
func (c *CRC64) BlockSize() int { return 1 }

// Checksum returns the CRC-64/ECMA of data.
func Checksum(data []byte) uint64 {
	return crc64.Checksum(data, ecmaTable)
}

// Parse reads the decimal form used by the x-oss-hash-crc64ecma header.
func Parse(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("crc: parse %q: %w", s, err)
	}
	return v, nil
}

// Format renders v in the header's decimal form.
func Format(v uint64) string {
	return strconv.FormatUint(v, 10)
}
