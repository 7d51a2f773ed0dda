// Package zonemap maintains the per-row-group partition statistics written
// next to each table file. Readers use them to skip row groups that cannot
// hold the requested partition.
package zonemap

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/beatset/beatset/internal/bloom"
)

// Suffix is appended to a table file path to name its sidecar.
const Suffix = ".zmap"

// targetFPR is the bloom false positive rate per row group.
const targetFPR = 0.01

// Sidecar describes every row group of one table file, in file order.
type Sidecar struct {
	Table     string     `json:"table"`
	RowGroups []RowGroup `json:"row_groups"`
}

// RowGroup holds the partition-id range and membership filter of one row
// group.
type RowGroup struct {
	Rows  int64  `json:"rows"`
	Min   string `json:"min"`
	Max   string `json:"max"`
	Bloom []byte `json:"bloom"`
}

// Builder accumulates statistics while a table file is written. Call
// Observe for each row and Seal at each row group boundary.
type Builder struct {
	sidecar Sidecar
	ids     map[string]struct{}
	rows    int64
	min     string
	max     string
}

// NewBuilder returns a builder for the named table.
func NewBuilder(table string) *Builder {
	return &Builder{
		sidecar: Sidecar{Table: table},
		ids:     make(map[string]struct{}),
	}
}

// Observe records one row of the current row group.
func (b *Builder) Observe(partitionID string) {
	if b.rows == 0 || partitionID < b.min {
		b.min = partitionID
	}
	if b.rows == 0 || partitionID > b.max {
		b.max = partitionID
	}
	b.ids[partitionID] = struct{}{}
	b.rows++
}

// Seal closes the current row group. It is a no-op when no rows were
// observed.
func (b *Builder) Seal() error {
	if b.rows == 0 {
		return nil
	}
	f := bloom.New(len(b.ids), targetFPR)
	for id := range b.ids {
		f.Add(id)
	}
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("zonemap: %w", err)
	}
	b.sidecar.RowGroups = append(b.sidecar.RowGroups, RowGroup{
		Rows:  b.rows,
		Min:   b.min,
		Max:   b.max,
		Bloom: data,
	})
	b.ids = make(map[string]struct{})
	b.rows = 0
	return nil
}

// Sidecar returns the statistics gathered so far.
func (b *Builder) Sidecar() *Sidecar {
	return &b.sidecar
}

// Write stores the sidecar for the table file at tablePath.
func Write(tablePath string, s *Sidecar) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("zonemap: failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(tablePath+Suffix, data, 0644); err != nil {
		return fmt.Errorf("zonemap: failed to write sidecar: %w", err)
	}
	return nil
}

// Read loads the sidecar of the table file at tablePath. It returns nil, nil
// when no sidecar exists.
func Read(tablePath string) (*Sidecar, error) {
	data, err := os.ReadFile(tablePath + Suffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("zonemap: failed to read sidecar: %w", err)
	}
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("zonemap: failed to parse sidecar: %w", err)
	}
	return &s, nil
}

// Candidates returns the indices of row groups that may hold partitionID.
// A row group whose filter cannot be decoded is kept.
func (s *Sidecar) Candidates(partitionID string) []int {
	var out []int
	for i, rg := range s.RowGroups {
		if partitionID < rg.Min || partitionID > rg.Max {
			continue
		}
		var f bloom.Filter
		if err := f.UnmarshalBinary(rg.Bloom); err == nil && !f.MayContain(partitionID) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// TotalRows returns the row count across row groups.
func (s *Sidecar) TotalRows() int64 {
	var n int64
	for _, rg := range s.RowGroups {
		n += rg.Rows
	}
	return n
}
