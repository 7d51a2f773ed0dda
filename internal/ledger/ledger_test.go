package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beatset/beatset/internal/errors"
)

func TestLedger_RecordAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "failed_folders.txt")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", l.Len())
	}
	if err := l.Record("123", "no .osu files"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Record("456", "line one\nline two"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !l.Contains("123") {
		t.Error("expected 123 to be ledgered")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	want := "123: no .osu files\n456: line one line two\n"
	if string(data) != want {
		t.Errorf("ledger content = %q, want %q", data, want)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.IDs(); len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Errorf("IDs = %v", got)
	}
	if r, ok := reopened.Reason("456"); !ok || r != "line one line two" {
		t.Errorf("Reason(456) = %q, %v", r, ok)
	}
	if err := reopened.Record("789", "x"); err != nil {
		t.Fatalf("Record after reopen failed: %v", err)
	}
	reopened.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again.Len() != 3 {
		t.Errorf("expected 3 entries after append, got %d", again.Len())
	}
}

func TestLedger_TornAndForeignLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_folders.txt")
	content := "111: bad\r\n\n222\n333: reason: with colon\n444: torn"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, id := range []string{"111", "222", "333"} {
		if !l.Contains(id) {
			t.Errorf("expected %s to be ledgered", id)
		}
	}
	if l.Contains("444") {
		t.Error("torn trailing line should be ignored")
	}
	if r, _ := l.Reason("333"); r != "reason: with colon" {
		t.Errorf("Reason(333) = %q", r)
	}
	if r, _ := l.Reason("111"); r != "bad" {
		t.Errorf("Reason(111) = %q", r)
	}
}

func TestLedger_RecordAfterTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_folders.txt")
	if err := os.WriteFile(path, []byte("111: bad\n444: to"), 0644); err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Record("555", "oops"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	l.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if r, ok := again.Reason("555"); !ok || r != "oops" {
		t.Errorf("Reason(555) = %q, %v", r, ok)
	}
	if r, _ := again.Reason("444"); r != "to" {
		t.Errorf("Reason(444) = %q", r)
	}
}

func TestLedger_IDsWithSeparator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_folders.txt")
	ids := []string{
		"123 Artist - Title",
		"456 Re: Zero: Title",
		`"quoted" folder`,
		" padded ",
		"two\nlines",
	}

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, id := range ids {
		if err := l.Record(id, "[PARSE:NO_BEATMAP_FILES] no beatmap files: "+id); err != nil {
			t.Fatalf("Record(%q) failed: %v", id, err)
		}
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	if !strings.HasPrefix(string(data), "123 Artist - Title: ") {
		t.Errorf("plain ids should stay unquoted, got %q", data)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again.Len() != len(ids) {
		t.Errorf("expected %d entries, got %d: %q", len(ids), again.Len(), again.IDs())
	}
	for _, id := range ids {
		if !again.Contains(id) {
			t.Errorf("expected %q to be ledgered", id)
		}
	}
	if r, _ := again.Reason("456 Re: Zero: Title"); r != "[PARSE:NO_BEATMAP_FILES] no beatmap files: 456 Re: Zero: Title" {
		t.Errorf("Reason = %q", r)
	}
}

func TestLedger_IOErrorsHaveLedgerCode(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); errors.GetCode(err) != errors.CodeLedgerIO {
		t.Errorf("Open(directory) error = %v, want code %s", err, errors.CodeLedgerIO)
	}

	path := filepath.Join(dir, "failed_folders.txt")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}
	if err := l.Record("1", "x"); errors.GetCode(err) != errors.CodeLedgerIO {
		t.Errorf("Record error = %v, want code %s", err, errors.CodeLedgerIO)
	}
}
