// Package ledger keeps the list of partitions that failed to encode, one
// "partition_id: reason" line each. Ids that contain the separator, quotes,
// line breaks or surrounding spaces are written as Go quoted strings. Later runs skip ledgered partitions
// unless forced.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/beatset/beatset/internal/errors"
)

const separator = ": "

// Ledger is an append-only failure list backed by a text file.
type Ledger struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	reasons map[string]string
	// torn is set when the file does not end with a newline.
	torn bool
}

// Open loads the ledger at path, creating it on first Record. A trailing
// line without a newline is a torn write and is ignored.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, reasons: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, errors.NewStorageError(errors.CodeLedgerIO, "failed to read ledger "+path, err)
	}
	text := string(data)
	l.torn = len(text) > 0 && !strings.HasSuffix(text, "\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[:i+1]
	} else {
		text = ""
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		id, reason, ok := parseLine(sc.Text())
		if ok {
			l.reasons[id] = reason
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeLedgerIO, "failed to read ledger "+path, err)
	}
	return l, nil
}

func parseLine(line string) (id, reason string, ok bool) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	if strings.HasPrefix(line, `"`) {
		if q, err := strconv.QuotedPrefix(line); err == nil {
			id, _ = strconv.Unquote(q)
			rest := line[len(q):]
			if rest == "" {
				return id, "", true
			}
			if strings.HasPrefix(rest, separator) {
				return id, rest[len(separator):], true
			}
		}
	}
	i := strings.Index(line, separator)
	if i < 0 {
		return strings.TrimSpace(line), "", true
	}
	return line[:i], line[i+len(separator):], true
}

// formatID quotes ids that would not read back verbatim as plain text.
func formatID(id string) string {
	if id == "" || strings.Contains(id, separator) || strings.HasPrefix(id, `"`) ||
		strings.ContainsAny(id, "\r\n") || strings.TrimSpace(id) != id {
		return strconv.Quote(id)
	}
	return id
}

// Path returns the ledger file.
func (l *Ledger) Path() string { return l.path }

// Contains reports whether partitionID has failed before.
func (l *Ledger) Contains(partitionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.reasons[partitionID]
	return ok
}

// Reason returns the recorded reason for partitionID.
func (l *Ledger) Reason(partitionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reasons[partitionID]
	return r, ok
}

// Len returns the number of ledgered partitions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reasons)
}

// IDs returns the ledgered partitions, sorted.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.reasons))
	for id := range l.reasons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Record appends a failure and syncs the file. Line breaks in reason are
// flattened to keep one entry per line.
func (l *Ledger) Record(partitionID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return errors.NewStorageError(errors.CodeLedgerIO, "failed to create ledger directory", err)
		}
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.NewStorageError(errors.CodeLedgerIO, "failed to open ledger "+l.path, err)
		}
		l.file = f
	}

	reason = strings.Join(strings.Fields(reason), " ")
	line := fmt.Sprintf("%s%s%s\n", formatID(partitionID), separator, reason)
	if l.torn {
		line = "\n" + line
	}
	if _, err := l.file.WriteString(line); err != nil {
		return errors.NewStorageError(errors.CodeLedgerIO, "failed to append to ledger", err)
	}
	if err := l.file.Sync(); err != nil {
		return errors.NewStorageError(errors.CodeLedgerIO, "failed to sync ledger", err)
	}
	l.torn = false
	l.reasons[partitionID] = reason
	return nil
}

// Close closes the ledger file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
