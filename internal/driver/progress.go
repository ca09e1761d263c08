package driver

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	progressInterval = 100 * time.Millisecond
	progressWidth    = 80
)

// progress renders a single self-overwriting status line for a download.
type progress struct {
	mu        sync.Mutex
	out       io.Writer
	lastPrint time.Time
	printed   bool
	now       func() time.Time
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out, now: time.Now}
}

func (p *progress) update(written int64, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastPrint) < progressInterval && !(total > 0 && written >= total) {
		return
	}
	p.lastPrint = now

	var line string
	if total > 0 {
		percent := float64(written) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
		line = fmt.Sprintf("\rDownloading bore: %3.0f%% (%s/%s)", percent, formatBytes(written), formatBytes(total))
	} else {
		line = fmt.Sprintf("\rDownloading bore: %s", formatBytes(written))
	}
	if len(line) < progressWidth {
		line += strings.Repeat(" ", progressWidth-len(line))
	}
	_, _ = fmt.Fprint(p.out, line)
	p.printed = true
}

// finish clears the status line if anything was printed.
func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.printed {
		return
	}
	_, _ = fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", progressWidth))
	p.printed = false
}

func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case b >= mb:
		return fmt.Sprintf("%.1fMB", float64(b)/mb)
	case b >= kb:
		return fmt.Sprintf("%.1fKB", float64(b)/kb)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
