package annotations

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event)

	switch event.Name {
	case UpdateRegistered:
		return fmt.Sprintf("%s registered %v", latency, event.Data["action"])

	case BatchBegin:
		return fmt.Sprintf("%s %s batch of %v actions",
			latency, f.colorize("===", color.FgYellow), event.Data["actions"])

	case BatchApplied:
		return fmt.Sprintf("%s batch applied, %v databases touched",
			latency, event.Data["databases"])

	case BatchComplete:
		return fmt.Sprintf("%s %s batch done, %v observers notified",
			latency, f.colorize("===", color.FgGreen), event.Data["observers"])

	case BatchLooped:
		return fmt.Sprintf("%s batch looping: %v actions arrived during delivery",
			latency, event.Data["actions"])

	case ObserverWillChange:
		return fmt.Sprintf("%s willChange -> observer %v", latency, event.Data["observer"])

	case ObserverDidChange:
		return fmt.Sprintf("%s didChange -> observer %v", latency, event.Data["observer"])

	case ObserverSkipped:
		return fmt.Sprintf("%s observer %v skipped: predicate provably inconsistent",
			latency, event.Data["observer"])

	case ObserverDelta:
		return fmt.Sprintf("%s delta -> observer %v: +%v -%v",
			latency, event.Data["observer"], event.Data["added"], event.Data["removed"])

	case ObserverContents:
		return fmt.Sprintf("%s contents -> observer %v: %v rows",
			latency, event.Data["observer"], event.Data["rows"])

	case QueryExecuted:
		return fmt.Sprintf("%s query over %v: %v rows", latency,
			event.Data["relation"], event.Data["rows"])

	case SnapshotRestored:
		return fmt.Sprintf("%s snapshot restored over %v relations",
			latency, event.Data["relations"])

	case ErrorMutation, ErrorQuery, ErrorStorage:
		return fmt.Sprintf("%s %s %s: %v", latency,
			f.colorize("✗", color.FgRed), event.Name, event.Data["error"])
	}

	return fmt.Sprintf("%s %s", latency, event.Name)
}

func (f *OutputFormatter) formatLatency(event Event) string {
	if event.Latency <= 0 {
		return f.colorize("[      -]", color.FgHiBlack)
	}
	return f.colorize(fmt.Sprintf("[%7s]", event.Latency.Round(10*time.Microsecond)), color.FgHiBlack)
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stdout.
func ConsoleHandler() Handler {
	formatter := NewOutputFormatter(os.Stdout)
	return formatter.Handle
}

// isTerminal checks if the file descriptor is a terminal.
// This is a simplified version - in production you'd use a proper terminal detection library.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2) // stdout or stderr
}
