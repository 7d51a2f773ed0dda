package app

import (
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uilive"

	"github.com/beatset/beatset/internal/observability"
)

// topErrors is the number of error codes a summary lists.
const topErrors = 5

func printErrors(w io.Writer, codes []observability.CodeStats) {
	if len(codes) == 0 {
		return
	}
	fmt.Fprintln(w, "top errors:")
	for _, c := range codes {
		fmt.Fprintf(w, "  %-32s %6d  %s\n", c.Key(), c.Count, c.Example)
	}
}

// progress rewrites a single status line in place. The zero value
// discards updates.
type progress struct {
	w     *uilive.Writer
	start time.Time
}

func (a *App) startProgress() *progress {
	if a.progress == nil {
		return &progress{}
	}
	w := uilive.New()
	w.Out = a.progress
	w.Start()
	return &progress{w: w, start: time.Now()}
}

func (p *progress) set(format string, args ...interface{}) {
	if p.w == nil {
		return
	}
	elapsed := time.Since(p.start).Round(time.Second)
	fmt.Fprintf(p.w, format+" [%s]\n", append(args, elapsed)...)
}

func (p *progress) stop() {
	if p.w != nil {
		p.w.Stop()
	}
}
