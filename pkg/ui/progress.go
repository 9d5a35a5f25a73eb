package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const clearLine = "\r\033[K"

// Progress is the sideband shared by scripts and the scheduler. Every
// message is written as one whole line; in interactive mode the status bar
// is erased first and redrawn after, so lines never interleave with it.
type Progress struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	barWidth    int
	start       time.Time

	total     atomic.Int64
	completed atomic.Int64
	findings  atomic.Int64
	errors    atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewProgress writes to w. With interactive false no status bar is drawn.
func NewProgress(w io.Writer, interactive bool) *Progress {
	return &Progress{
		w:           w,
		interactive: interactive,
		barWidth:    30,
		start:       time.Now(),
	}
}

// Println writes one line to the sideband.
func (p *Progress) Println(line string) {
	if p == nil {
		return
	}
	line = strings.TrimRight(line, "\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		io.WriteString(p.w, clearLine)
	}
	io.WriteString(p.w, line+"\n")
	if p.interactive {
		p.drawLocked()
	}
}

// Printf formats and writes one line.
func (p *Progress) Printf(format string, args ...any) {
	p.Println(fmt.Sprintf(format, args...))
}

// Warn writes a highlighted warning line.
func (p *Progress) Warn(msg string) {
	p.Println(WarnStyle.Render("[WRN]") + " " + msg)
}

// Error writes a highlighted error line.
func (p *Progress) Error(msg string) {
	p.Println(ErrorStyle.Render("[ERR]") + " " + msg)
}

// Finding summarises one reported finding as "[risk] name url".
func (p *Progress) Finding(risk, name, url string) {
	if p == nil {
		return
	}
	p.findings.Add(1)
	if risk == "" {
		risk = "unknown"
	}
	p.Println(fmt.Sprintf("%s %s %s",
		SeverityStyle(risk).Render("["+risk+"]"),
		name,
		URLStyle.Render(url)))
}

// AddTotal grows the unit total.
func (p *Progress) AddTotal(n int) {
	if p != nil {
		p.total.Add(int64(n))
	}
}

// Done counts one finished unit.
func (p *Progress) Done(failed bool) {
	if p == nil {
		return
	}
	p.completed.Add(1)
	if failed {
		p.errors.Add(1)
	}
}

// Counts returns completed, total, findings and errors.
func (p *Progress) Counts() (completed, total, findings, errors int64) {
	return p.completed.Load(), p.total.Load(), p.findings.Load(), p.errors.Load()
}

// Start redraws the status bar every interval until Stop.
func (p *Progress) Start(interval time.Duration) {
	if p == nil || !p.interactive {
		return
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	p.done = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.mu.Lock()
				p.drawLocked()
				p.mu.Unlock()
			}
		}
	}()
}

// Stop ends redrawing and leaves the final status on its own line.
func (p *Progress) Stop() {
	if p == nil || p.done == nil {
		return
	}
	close(p.done)
	p.wg.Wait()
	p.done = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawLocked()
	io.WriteString(p.w, "\n")
}

// Status renders the status bar text.
func (p *Progress) Status() string {
	completed, total, findings, errors := p.Counts()

	filled := 0
	if total > 0 {
		filled = int(float64(p.barWidth) * float64(completed) / float64(total))
		if filled > p.barWidth {
			filled = p.barWidth
		}
	}
	bar := ProgressFullStyle.Render(strings.Repeat("█", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("░", p.barWidth-filled))

	elapsed := time.Since(p.start).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s %s %s %s %s",
		bar,
		StatValueStyle.Render(fmt.Sprintf("%d/%d", completed, total)),
		StatLabelStyle.Render("units"),
		StatValueStyle.Render(fmt.Sprint(findings)),
		StatLabelStyle.Render("findings"),
		StatValueStyle.Render(fmt.Sprint(errors)),
		StatLabelStyle.Render("errors "+elapsed.String()))
}

func (p *Progress) drawLocked() {
	io.WriteString(p.w, clearLine+p.Status())
}
