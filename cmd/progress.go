package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wpinspect/wpinspect/internal/analyzer"
)

// progressPrinter redraws a single status line while a batch runs.
type progressPrinter struct {
	out   io.Writer
	total int

	mu        sync.Mutex
	ok        int
	fail      int
	wordpress int
	elapsed   time.Duration

	updates  chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, total int) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		out:     out,
		total:   total,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop(300 * time.Millisecond)
}

// Observe records one finished site.
func (p *progressPrinter) Observe(r analyzer.BatchResult) {
	p.mu.Lock()
	if r.Error != "" || r.Result == nil {
		p.fail++
	} else {
		p.ok++
		p.elapsed += r.Result.Duration
		if r.Result.WordPress.IsPositive {
			p.wordpress++
		}
	}
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Stop halts redraws and prints the final line.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		<-p.stopped
		fmt.Fprintf(p.out, "\r%s\r%s\n", strings.Repeat(" ", 80), p.line())
	})
}

func (p *progressPrinter) loop(every time.Duration) {
	defer close(p.stopped)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.updates:
		case <-ticker.C:
		case <-p.done:
			return
		}
		fmt.Fprintf(p.out, "\r%s", p.line())
	}
}

func (p *progressPrinter) line() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := p.ok + p.fail
	total := p.total
	if completed > total {
		total = completed
	}
	avg := 0.0
	if p.ok > 0 {
		avg = p.elapsed.Seconds() / float64(p.ok)
	}
	return fmt.Sprintf("[batch] %d/%d (%.1f%%) OK:%d Fail:%d WordPress:%d Avg:%.2fs",
		completed, total, float64(completed)/float64(total)*100, p.ok, p.fail, p.wordpress, avg)
}
