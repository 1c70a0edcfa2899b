// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package display renders session events for a terminal. Printer is an
// operation.Observer: subscribe it to a session and it prints state
// transitions with pterm prefix printers and keeps a progress bar fed
// from Progress events.
package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/walteh/vfsops/pkg/operation"
)

// 📢 Printer renders session events as user-facing terminal lines.
type Printer struct {
	console io.Writer
	quiet   bool

	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
	// barTotal remembers the total the bar was sized with so retotaling
	// only happens when an operation revises its estimate.
	barTotal int64
	barDone  int64
}

// 🏭 New creates a printer writing to console. quiet drops everything
// except errors.
func New(console io.Writer, quiet bool) *Printer {
	return &Printer{console: console, quiet: quiet}
}

var _ operation.Observer = (*Printer)(nil)

// OnEvent implements operation.Observer.
func (p *Printer) OnEvent(ev operation.Event) {
	switch ev.Kind {
	case operation.EventStateChanged:
		p.stateChanged(ev)
	case operation.EventError:
		p.errored(ev)
	case operation.EventProgress:
		p.progressed(ev)
	}
}

// OnComplete implements operation.Observer.
func (p *Printer) OnComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopBar()
}

func (p *Printer) stateChanged(ev operation.Event) {
	if p.quiet {
		return
	}

	var printer *pterm.PrefixPrinter
	switch ev.State {
	case operation.StateRunning:
		printer = pterm.Info.WithPrefix(pterm.Prefix{Text: "▶️"})
	case operation.StateCompleted:
		printer = pterm.Success.WithPrefix(pterm.Prefix{Text: "✅"})
	case operation.StateSkipped:
		printer = pterm.Debug.WithPrefix(pterm.Prefix{Text: "⏭️"})
	case operation.StateCancelled:
		printer = pterm.Warning.WithPrefix(pterm.Prefix{Text: "🚫"})
	case operation.StateErrored:
		printer = pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"})
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.State.Terminal() {
		p.stopBar()
	}
	printer.WithWriter(p.console).Println(describe(ev.Op))
}

func (p *Printer) errored(ev operation.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopBar()
	pterm.Error.WithWriter(p.console).Println(
		fmt.Sprintf("%s: %v", describe(ev.Op), ev.Err))
}

func (p *Printer) progressed(ev operation.Event) {
	if p.quiet || ev.Total <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.barTotal != ev.Total {
		p.stopBar()
		bar, err := pterm.DefaultProgressbar.
			WithWriter(p.console).
			WithTotal(int(ev.Total)).
			WithTitle(describe(ev.Op)).
			Start()
		if err != nil {
			return
		}
		p.bar = bar
		p.barTotal = ev.Total
		p.barDone = 0
	}

	if delta := ev.Done - p.barDone; delta > 0 {
		p.bar.Add(int(delta))
		p.barDone = ev.Done
	}
	if ev.Done >= ev.Total {
		p.stopBar()
	}
}

func (p *Printer) stopBar() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
		p.barTotal = 0
		p.barDone = 0
	}
}

// 📝 Header prints the tool banner line.
func (p *Printer) Header(msg string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("vfsops")
	fmt.Fprintf(p.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
}

// 📝 Summary prints the final per-child outcome table of a composite.
func (p *Printer) Summary(children []operation.Operation) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopBar()

	for _, child := range children {
		var mark string
		switch child.State() {
		case operation.StateCompleted:
			mark = color.New(color.FgGreen).Sprint("✓")
		case operation.StateSkipped:
			mark = color.New(color.FgYellow).Sprint("-")
		case operation.StateCancelled:
			mark = color.New(color.FgYellow).Sprint("✗")
		case operation.StateErrored:
			mark = color.New(color.FgRed).Sprint("✗")
		default:
			mark = color.New(color.Faint).Sprint("·")
		}
		fmt.Fprintf(p.console, "    %s %-50s %s\n", mark, child.Describe(), child.State())
	}
}

func describe(op operation.Operation) string {
	if op == nil {
		return ""
	}
	return op.Describe()
}
