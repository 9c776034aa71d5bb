package types

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// TerminalPrinter refreshes one terminal line per output at a fixed interval
type TerminalPrinter struct {
	outputs  []*Output
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(ctx context.Context, outputs []*Output, interval time.Duration) *TerminalPrinter {
	return NewTerminalPrinterTo(ctx, outputs, interval, nil)
}

// NewTerminalPrinterTo writes to out instead of stdout when out is not nil
func NewTerminalPrinterTo(ctx context.Context, outputs []*Output, interval time.Duration, out io.Writer) *TerminalPrinter {
	printerCtx, cancel := context.WithCancel(ctx)
	writer := uilive.New()
	if out != nil {
		writer.Out = out
	}
	writers := make([]io.Writer, 0, len(outputs))
	for i := range outputs {
		if i == 0 {
			writers = append(writers, writer)
			continue
		}
		writers = append(writers, writer.Newline())
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TerminalPrinter{
		outputs:  outputs,
		interval: interval,
		ctx:      printerCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		writer:   writer,
		writers:  writers,
	}
}

func (p *TerminalPrinter) Start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				p.print()
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

// Stop prints the final state and waits for the printer to exit
func (p *TerminalPrinter) Stop() {
	p.cancel()
	<-p.done
}

func (p *TerminalPrinter) print() {
	for i, output := range p.outputs {
		fmt.Fprint(p.writers[i], output.Get()+"\n")
	}
	p.writer.Flush()
}

// Output holds the latest status line of a running experiment
type Output struct {
	mu        sync.Mutex
	printable string
}

func NewOutput() *Output {
	return &Output{}
}

func (o *Output) Set(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printable = s
}

// TrySet updates the line unless a print is in progress
func (o *Output) TrySet(s string) bool {
	if !o.mu.TryLock() {
		return false
	}
	defer o.mu.Unlock()
	o.printable = s
	return true
}

func (o *Output) Get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.printable
}
