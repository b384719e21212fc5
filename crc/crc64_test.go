package crc_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss/crc"
)

func TestCRC64_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		want uint64
	}{
		{name: "empty", data: "", want: 0},
		{name: "check string", data: "123456789", want: 0x995dc9bbdf1939fa},
		{name: "hello world", data: "hello world", want: 0x53037ecdef2352da},
		{name: "AB", data: "AB", want: 0x07dac6e8f2b4d348},
		{name: "BA", data: "BA", want: 0xbd4b36b7bc223f6b},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := crc.NewECMA()
			c.Update([]byte(tt.data))
			assert.Equal(t, tt.want, c.Sum64())
			assert.Equal(t, tt.want, crc.Checksum([]byte(tt.data)))
		})
	}
}

func TestCRC64_Incremental(t *testing.T) {
	c := crc.NewECMA()
	c.Update([]byte("hello "))
	c.Update([]byte("world"))
	assert.Equal(t, uint64(0x53037ecdef2352da), c.Sum64())
}

func TestCRC64_OrderSensitive(t *testing.T) {
	ab := crc.NewECMA()
	ab.Update([]byte("A"))
	ab.Update([]byte("B"))

	ba := crc.NewECMA()
	ba.Update([]byte("B"))
	ba.Update([]byte("A"))

	assert.NotEqual(t, ab.Sum64(), ba.Sum64())
}

func TestCRC64_Reset(t *testing.T) {
	fresh := crc.New(42)
	c := crc.New(42)
	c.Update([]byte("some bytes"))
	require.NotEqual(t, fresh.Sum64(), c.Sum64())

	c.Reset()
	assert.Equal(t, fresh.Sum64(), c.Sum64())

	c.Update([]byte("hello"))
	fresh.Update([]byte("hello"))
	assert.Equal(t, fresh.Sum64(), c.Sum64())
}

func TestCRC64_SeedContinues(t *testing.T) {
	first := crc.Checksum([]byte("hello "))
	c := crc.New(first)
	c.Update([]byte("world"))
	assert.Equal(t, crc.Checksum([]byte("hello world")), c.Sum64())
}

func TestCRC64_Encodings(t *testing.T) {
	c := crc.NewECMA()
	_, err := c.Write([]byte("123456789"))
	require.NoError(t, err)

	final := c.Final()
	require.Len(t, final, crc.Size)
	assert.Equal(t, uint64(0x995dc9bbdf1939fa), binary.LittleEndian.Uint64(final))

	sum := c.Sum([]byte{0xff})
	require.Len(t, sum, 9)
	assert.Equal(t, uint64(0x995dc9bbdf1939fa), binary.BigEndian.Uint64(sum[1:]))
	assert.Equal(t, 8, c.Size())
	assert.Equal(t, 1, c.BlockSize())
}

func TestCombine(t *testing.T) {
	assert.Equal(t, uint64(0x53037ecdef2352da),
		crc.Combine(crc.Checksum([]byte("hello ")), crc.Checksum([]byte("world")), 5))

	data := bytes.Repeat([]byte("0123456789abcdef"), 4099)
	for _, split := range []int{0, 1, 1000, len(data) / 2, len(data) - 1, len(data)} {
		a, b := data[:split], data[split:]
		got := crc.Combine(crc.Checksum(a), crc.Checksum(b), int64(len(b)))
		assert.Equal(t, crc.Checksum(data), got, "split at %d", split)
	}
}

func TestCombineParts(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 3001)
	var parts []crc.Part
	for off := 0; off < len(data); off += 4096 {
		end := min(off+4096, len(data))
		parts = append(parts, crc.Part{CRC: crc.Checksum(data[off:end]), Size: int64(end - off)})
	}
	assert.Equal(t, crc.Checksum(data), crc.CombineParts(parts))
	assert.Zero(t, crc.CombineParts(nil))
}

func TestParseFormat(t *testing.T) {
	v, err := crc.Parse("5981764153023615706")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x53037ecdef2352da), v)
	assert.Equal(t, "5981764153023615706", crc.Format(v))

	_, err = crc.Parse("not-a-number")
	assert.Error(t, err)
}
