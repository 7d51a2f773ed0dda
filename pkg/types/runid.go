package types

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"sync"
	"time"
)

// RunID identifies one encode run. It is a 128-bit ULID-style identifier:
// a 48-bit millisecond timestamp followed by 80 random bits, so IDs sort by
// creation time.
type RunID [16]byte

// crockford is in ascending byte order, which keeps encoded IDs sortable.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// ErrInvalidRunID is returned by ParseRunID for malformed input.
var ErrInvalidRunID = errors.New("invalid run id")

// RunIDGenerator produces monotonically increasing run IDs.
type RunIDGenerator struct {
	mu     sync.Mutex
	lastMs uint64
	last   [10]byte
}

// NewRunIDGenerator returns a generator.
func NewRunIDGenerator() *RunIDGenerator {
	return &RunIDGenerator{}
}

// Next returns a run ID for the current time.
func (g *RunIDGenerator) Next() (RunID, error) {
	return g.At(time.Now())
}

// At returns a run ID for t. IDs generated within the same millisecond
// increment the random part instead of drawing new bytes.
func (g *RunIDGenerator) At(t time.Time) (RunID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())
	if ms == g.lastMs {
		for i := len(g.last) - 1; i >= 0; i-- {
			g.last[i]++
			if g.last[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.last[:]); err != nil {
			return RunID{}, err
		}
		g.lastMs = ms
	}

	var id RunID
	for i := 0; i < 6; i++ {
		id[i] = byte(ms >> (40 - 8*i))
	}
	copy(id[6:], g.last[:])
	return id, nil
}

// Time returns the timestamp part.
func (id RunID) Time() time.Time {
	var ms uint64
	for i := 0; i < 6; i++ {
		ms = ms<<8 | uint64(id[i])
	}
	return time.UnixMilli(int64(ms))
}

// String returns the 26 character Crockford base32 form.
func (id RunID) String() string {
	return crockford.EncodeToString(id[:])
}

// ParseRunID parses the output of RunID.String.
func ParseRunID(s string) (RunID, error) {
	var id RunID
	if len(s) != 26 {
		return id, ErrInvalidRunID
	}
	b, err := crockford.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, ErrInvalidRunID
	}
	copy(id[:], b)
	return id, nil
}
