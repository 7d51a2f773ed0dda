package observability

import (
	"fmt"
	"sync"
	"testing"

	"github.com/beatset/beatset/internal/errors"
)

// TestRecordConcurrent tests concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	s := NewErrorStats()
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				s.Record("folder", errors.NewParseError(errors.CodeNoBeatmapFiles, "no .osu files", nil))
				s.Record("asset", errors.NewAssetError(errors.CodeAssetMissing, "bg.jpg", nil))
			}
		}()
	}
	wg.Wait()

	top := s.Top(10)
	if len(top) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(top))
	}
	expected := int64(numGoroutines * recordsPerGoroutine)
	for _, c := range top {
		if c.Count != expected {
			t.Errorf("expected count %d for %s, got %d", expected, c.Key(), c.Count)
		}
	}
	if s.Total() != 2*expected {
		t.Errorf("expected total %d, got %d", 2*expected, s.Total())
	}
}

func TestTopOrdering(t *testing.T) {
	s := NewErrorStats()
	for i := 0; i < 3; i++ {
		s.Record("object", errors.NewReferenceError(errors.CodeUnknownTag, fmt.Sprintf("tag %d", i), nil))
	}
	s.Record("file", errors.NewParseError(errors.CodeMalformedLine, "bad line", nil))
	s.Record("file", errors.NewParseError(errors.CodeUnreadableFile, "gone", nil))
	s.Record("partition", fmt.Errorf("plain"))
	s.Record("partition", nil)

	top := s.Top(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 codes, got %d", len(top))
	}
	if top[0].Key() != "REFERENCE/UNKNOWN_TAG" || top[0].Count != 3 {
		t.Errorf("unexpected first entry %s=%d", top[0].Key(), top[0].Count)
	}
	if top[0].Example == "" {
		t.Errorf("expected an example message")
	}
	// ties sort by key
	if top[1].Key() != "PARSE/MALFORMED_LINE" || top[2].Key() != "PARSE/UNREADABLE_FILE" {
		t.Errorf("unexpected tie order %s, %s", top[1].Key(), top[2].Key())
	}
	if all := s.Top(10); all[3].Key() != Unclassified {
		t.Errorf("expected unclassified entry, got %s", all[3].Key())
	}
	if s.Total() != 6 {
		t.Errorf("expected 6 errors, got %d", s.Total())
	}
}

func TestTopReturnsCopies(t *testing.T) {
	s := NewErrorStats()
	s.Record("asset", errors.NewAssetError(errors.CodeCopyFailed, "x", nil))

	top := s.Top(1)
	top[0].Stages["asset"] = 99
	if got := s.Top(1)[0].Stages["asset"]; got != 1 {
		t.Errorf("Top must return copies, stage count is %d", got)
	}
	if len(s.Top(0)) != 0 {
		t.Error("Top(0) should be empty")
	}
}
