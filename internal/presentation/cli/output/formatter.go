// Package output renders command results as colored text, tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Format represents the output format type.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Color represents ANSI color codes for terminal output.
type Color string

const (
	ColorReset  Color = "\033[0m"
	ColorRed    Color = "\033[31m"
	ColorGreen  Color = "\033[32m"
	ColorYellow Color = "\033[33m"
	ColorBlue   Color = "\033[34m"
	ColorCyan   Color = "\033[36m"
	ColorBold   Color = "\033[1m"
	ColorDim    Color = "\033[2m"
)

// Formatter writes results to one writer and status messages to another.
// It is safe for concurrent use.
type Formatter struct {
	mu           sync.Mutex
	writer       io.Writer
	messages     io.Writer
	format       Format
	colorEnabled bool
	indent       string
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// NewFormatter creates a Formatter writing results to stdout and messages to stderr.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		writer:       os.Stdout,
		messages:     os.Stderr,
		format:       FormatText,
		colorEnabled: true,
		indent:       "  ",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithWriter sends both results and messages to w.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.writer = w
		f.messages = w
	}
}

// WithMessageWriter sets where Success, Warning, Error and Info go. Apply it after WithWriter.
func WithMessageWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.messages = w
	}
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) {
		f.format = format
	}
}

// WithColor enables or disables colored output.
func WithColor(enabled bool) Option {
	return func(f *Formatter) {
		f.colorEnabled = enabled
	}
}

// Format returns the current output format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// IsJSON reports whether results are rendered as JSON.
func (f *Formatter) IsJSON() bool {
	return f.Format() == FormatJSON
}

// Println writes a formatted result line.
func (f *Formatter) Println(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.writer, format+"\n", args...)
	return err
}

// Colorize wraps text with ANSI color codes if color is enabled.
func (f *Formatter) Colorize(text string, color Color) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.colorEnabled {
		return text
	}
	return string(color) + text + string(ColorReset)
}

func (f *Formatter) message(symbol string, color Color, format string, args ...any) error {
	line := f.Colorize(symbol+" "+fmt.Sprintf(format, args...), color)
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintln(f.messages, line)
	return err
}

// Success prints a success message in green.
func (f *Formatter) Success(format string, args ...any) error {
	return f.message("✓", ColorGreen, format, args...)
}

// Error prints an error message in red.
func (f *Formatter) Error(format string, args ...any) error {
	return f.message("✗", ColorRed, format, args...)
}

// Warning prints a warning message in yellow.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.message("⚠", ColorYellow, format, args...)
}

// Info prints an info message in blue.
func (f *Formatter) Info(format string, args ...any) error {
	return f.message("ℹ", ColorBlue, format, args...)
}

// Bold renders text in bold.
func (f *Formatter) Bold(text string) string {
	return f.Colorize(text, ColorBold)
}

// Dim renders text in dim style.
func (f *Formatter) Dim(text string) string {
	return f.Colorize(text, ColorDim)
}

// Status renders a sync outcome status in its color.
func (f *Formatter) Status(status string) string {
	switch status {
	case "created":
		return f.Colorize(status, ColorGreen)
	case "updated":
		return f.Colorize(status, ColorCyan)
	case "unchanged":
		return f.Colorize(status, ColorDim)
	case "error":
		return f.Colorize(status, ColorRed)
	default:
		return status
	}
}

// Header outputs a section header with underline.
func (f *Formatter) Header(msg string) error {
	title := f.Bold(msg)
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.writer, "%s\n%s\n", title, strings.Repeat("─", len([]rune(msg))))
	return err
}

// Item outputs a key-value pair.
func (f *Formatter) Item(key, value string) error {
	label := f.Dim(key + ":")
	return f.Println("  %s %s", label, value)
}

// BulletItem outputs a bulleted list item.
func (f *Formatter) BulletItem(msg string) error {
	return f.Println("  • %s", msg)
}

// Alignment defines text alignment in table cells.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableColumn defines a column in a table.
type TableColumn struct {
	Header string
	Align  Alignment
}

// TableData represents data for table formatting.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// Table writes data as an aligned table. Widths ignore ANSI codes in cells.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}

	widths := make([]int, len(data.Columns))
	for i, col := range data.Columns {
		widths[i] = visibleLen(col.Header)
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = padCell(col.Header, widths[i], col.Align)
		rules[i] = strings.Repeat("-", widths[i])
	}
	header := f.Bold(strings.Join(headers, "  "))

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fmt.Fprintf(f.writer, "%s\n%s\n", header, strings.Join(rules, "  ")); err != nil {
		return err
	}
	for _, row := range data.Rows {
		cells := make([]string, 0, len(data.Columns))
		for i, cell := range row {
			if i >= len(data.Columns) {
				break
			}
			cells = append(cells, padCell(cell, widths[i], data.Columns[i].Align))
		}
		if _, err := fmt.Fprintln(f.writer, strings.TrimRight(strings.Join(cells, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func padCell(text string, width int, align Alignment) string {
	padding := width - visibleLen(text)
	if padding <= 0 {
		return text
	}
	if align == AlignRight {
		return strings.Repeat(" ", padding) + text
	}
	return text + strings.Repeat(" ", padding)
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			n++
		}
	}
	return n
}

// JSON writes data as indented JSON.
func (f *Formatter) JSON(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", f.indent)
	return encoder.Encode(data)
}

// ParseFormat parses a string into a Format type.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", s)
	}
}
