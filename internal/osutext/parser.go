// Package osutext reads and writes the native line-oriented text formats:
// .osu beatmaps and .osb storyboards.
//
// Parsing is lenient the way the game client is: unknown keys, sections and
// malformed lines are skipped and counted, and only a file with no section
// at all is rejected.
package osutext

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/pkg/beatmap"
	"github.com/beatset/beatset/pkg/storyboard"
)

const formatHeader = "osu file format v"

// Parser decodes beatmap and storyboard files.
type Parser struct {
	logger *zap.Logger
}

// NewParser returns a parser that reports skipped lines to l at debug level.
func NewParser(l *zap.Logger) *Parser {
	return &Parser{logger: logger.OrNop(l)}
}

// ParseBeatmap decodes a .osu file.
func (p *Parser) ParseBeatmap(r io.Reader) (*beatmap.Beatmap, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, err
	}
	bm, skipped := decodeBeatmap(doc)
	p.report("beatmap", skipped)
	return bm, nil
}

// ParseStoryboard decodes the Events section of a .osb or .osu file. Lines
// that belong to the beatmap (background, breaks) are ignored.
func (p *Parser) ParseStoryboard(r io.Reader) (*storyboard.Storyboard, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, err
	}
	sb, skipped := decodeStoryboard(doc)
	p.report("storyboard", skipped)
	return sb, nil
}

func (p *Parser) report(kind string, skipped []lineError) {
	if len(skipped) == 0 {
		return
	}
	p.logger.Debug("Skipped malformed lines",
		zap.String("kind", kind),
		zap.Int("count", len(skipped)),
		zap.String("first", skipped[0].Error()),
	)
}

// line is one non-empty, non-comment line of a section. Text keeps its
// leading indentation, which is significant in Events.
type line struct {
	No   int
	Text string
}

type document struct {
	Version  int32
	Sections map[string][]line
}

type lineError struct {
	No  int
	Err error
}

func (e lineError) Error() string { return fmt.Sprintf("line %d: %v", e.No, e.Err) }

func readDocument(r io.Reader) (*document, error) {
	doc := &document{Version: beatmap.New().FormatVersion, Sections: make(map[string][]line)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	section := ""
	seen := false
	no := 0
	for sc.Scan() {
		no++
		text := strings.TrimRight(sc.Text(), " \t\r")
		if no == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		trimmed := strings.TrimSpace(text)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			continue
		case strings.HasPrefix(trimmed, formatHeader):
			if v, err := parseInt(strings.TrimPrefix(trimmed, formatHeader)); err == nil {
				doc.Version = v
			}
			continue
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			section = trimmed[1 : len(trimmed)-1]
			seen = true
			continue
		}
		if section == "" {
			continue
		}
		doc.Sections[section] = append(doc.Sections[section], line{No: no, Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewParseError(errors.CodeUnreadableFile, "read failed", err)
	}
	if !seen {
		return nil, errors.NewParseError(errors.CodeMalformedLine, "no sections found", nil)
	}
	return doc, nil
}

// pairs yields the key: value lines of a section.
func (d *document) pairs(section string, fn func(key, value string) error) []lineError {
	var errs []lineError
	for _, l := range d.Sections[section] {
		key, value, ok := strings.Cut(l.Text, ":")
		if !ok {
			errs = append(errs, lineError{l.No, fmt.Errorf("expected key: value")})
			continue
		}
		if err := fn(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			errs = append(errs, lineError{l.No, err})
		}
	}
	return errs
}

// variables returns the $name=value substitutions of the Variables section.
func (d *document) variables() *strings.Replacer {
	type variable struct{ name, value string }
	var vars []variable
	for _, l := range d.Sections["Variables"] {
		name, value, ok := strings.Cut(strings.TrimSpace(l.Text), "=")
		if !ok || !strings.HasPrefix(name, "$") {
			continue
		}
		vars = append(vars, variable{name, value})
	}
	if len(vars) == 0 {
		return nil
	}
	// longest names first so $ab is not replaced as $a followed by b
	sort.SliceStable(vars, func(i, j int) bool { return len(vars[i].name) > len(vars[j].name) })
	pairs := make([]string, 0, 2*len(vars))
	for _, v := range vars {
		pairs = append(pairs, v.name, v.value)
	}
	return strings.NewReplacer(pairs...)
}
