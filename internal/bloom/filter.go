// Package bloom provides the bloom filter stored in zone-map sidecars to
// answer "may this row group hold partition X" without reading it.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// Filter is a bloom filter over partition ids. It has no false negatives.
// A Filter is not safe for concurrent mutation.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a filter sized for expected items at the target false
// positive rate.
func New(expected int, fpr float64) *Filter {
	m, k := OptimalParameters(expected, fpr)
	words := (m + 63) / 64
	return &Filter{
		bits:      make([]uint64, words),
		numBits:   uint64(words * 64),
		numHashes: uint64(k),
	}
}

// OptimalParameters returns the bit count m = -n*ln(p)/ln(2)^2 and the hash
// count k = (m/n)*ln(2).
func OptimalParameters(expected int, fpr float64) (numBits, numHashes int) {
	if expected <= 0 {
		expected = 64
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = 0.01
	}
	n := float64(expected)
	m := -n * math.Log(fpr) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil(m / n * math.Ln2))
	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts a partition id.
func (f *Filter) Add(id string) {
	h1, h2 := murmur3.Sum128([]byte(id))
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MayContain reports whether id may have been added.
func (f *Filter) MayContain(id string) bool {
	h1, h2 := murmur3.Sum128([]byte(id))
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls.
func (f *Filter) Count() uint64 { return f.count }

// NumBits returns the filter width.
func (f *Filter) NumBits() int { return int(f.numBits) }

// MarshalBinary encodes the filter as a 24 byte header (bits, hashes,
// count) followed by the snappy-compressed bit array.
func (f *Filter) MarshalBinary() ([]byte, error) {
	raw := make([]byte, len(f.bits)*8)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(raw[i*8:], w)
	}
	compressed := snappy.Encode(nil, raw)
	buf := make([]byte, 24+len(compressed))
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits)
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	copy(buf[24:], compressed)
	return buf, nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < 24 {
		return errors.New("bloom: data too short")
	}
	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHashes := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if numBits == 0 || numBits%64 != 0 || numHashes == 0 {
		return errors.New("bloom: invalid filter parameters")
	}
	raw, err := snappy.Decode(nil, data[24:])
	if err != nil {
		return fmt.Errorf("bloom: snappy decode: %w", err)
	}
	words := numBits / 64
	if uint64(len(raw)) != words*8 {
		return fmt.Errorf("bloom: expected %d bytes of bits, got %d", words*8, len(raw))
	}
	bits := make([]uint64, words)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	f.bits, f.numBits, f.numHashes, f.count = bits, numBits, numHashes, count
	return nil
}
