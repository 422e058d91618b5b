package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestNewFormatter(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		f := NewFormatter()
		if f.format != FormatText {
			t.Errorf("expected format %v, got %v", FormatText, f.format)
		}
		if !f.colorEnabled {
			t.Error("expected color to be enabled by default")
		}
	})

	t.Run("with custom options", func(t *testing.T) {
		var out, msgs bytes.Buffer
		f := NewFormatter(WithWriter(&out), WithMessageWriter(&msgs), WithFormat(FormatJSON), WithColor(false))

		if !f.IsJSON() {
			t.Errorf("expected JSON format, got %v", f.Format())
		}
		if f.colorEnabled {
			t.Error("expected color to be disabled")
		}
		f.Println("result")
		f.Info("note")
		if out.String() != "result\n" {
			t.Errorf("results = %q", out.String())
		}
		if msgs.String() != "ℹ note\n" {
			t.Errorf("messages = %q", msgs.String())
		}
	})
}

func TestFormatter_Colorize(t *testing.T) {
	t.Run("with color enabled", func(t *testing.T) {
		f := NewFormatter(WithColor(true))
		got := f.Colorize("test", ColorRed)
		if got != string(ColorRed)+"test"+string(ColorReset) {
			t.Errorf("Colorize() = %q", got)
		}
	})

	t.Run("with color disabled", func(t *testing.T) {
		f := NewFormatter(WithColor(false))
		if got := f.Colorize("test", ColorRed); got != "test" {
			t.Errorf("Colorize() = %q, want plain text", got)
		}
	})
}

func TestFormatter_MessageTypes(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(f *Formatter) error
		prefix string
	}{
		{"success", func(f *Formatter) error { return f.Success("done %d", 3) }, "✓ done 3"},
		{"error", func(f *Formatter) error { return f.Error("failed") }, "✗ failed"},
		{"warning", func(f *Formatter) error { return f.Warning("careful") }, "⚠ careful"},
		{"info", func(f *Formatter) error { return f.Info("note") }, "ℹ note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(WithWriter(&buf), WithColor(false))
			if err := tt.fn(f); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := buf.String(); got != tt.prefix+"\n" {
				t.Errorf("got %q, want %q", got, tt.prefix+"\n")
			}
		})
	}
}

func TestFormatter_Status(t *testing.T) {
	f := NewFormatter(WithColor(true))
	tests := []struct {
		status string
		color  Color
	}{
		{"created", ColorGreen},
		{"updated", ColorCyan},
		{"unchanged", ColorDim},
		{"error", ColorRed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := f.Status(tt.status); !strings.HasPrefix(got, string(tt.color)) {
				t.Errorf("Status(%q) = %q", tt.status, got)
			}
		})
	}
	if got := f.Status("pending"); got != "pending" {
		t.Errorf("unknown status should be plain, got %q", got)
	}
}

func TestFormatter_HeaderAndItems(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	f.Header("Record 7")
	f.Item("status", "created")
	f.BulletItem("kept local value of bedrooms")

	want := "Record 7\n────────\n  status: created\n  • kept local value of bedrooms\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	err := f.Table(TableData{
		Columns: []TableColumn{{Header: "TARGET"}, {Header: "KIND"}, {Header: "N", Align: AlignRight}},
		Rows: [][]string{
			{"price_type", "text", "1"},
			{"size", "number", "12"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"TARGET      KIND     N",
		"----------  ------  --",
		"price_type  text     1",
		"size        number  12",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatter_Table_IgnoresColorCodesInWidths(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))
	colored := string(ColorGreen) + "ok" + string(ColorReset)

	f.Table(TableData{
		Columns: []TableColumn{{Header: "STATUS"}, {Header: "ID"}},
		Rows:    [][]string{{colored, "1"}},
	})

	lines := strings.Split(buf.String(), "\n")
	if want := colored + "      1"; lines[2] != want {
		t.Errorf("row = %q, want %q", lines[2], want)
	}
}

func TestFormatter_Table_EmptyColumns(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf))
	if err := f.Table(TableData{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf))

	if err := f.JSON(map[string]int{"created": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["created"] != 2 {
		t.Errorf("created = %d, want 2", got["created"])
	}
	if !strings.Contains(buf.String(), "\n  \"created\"") {
		t.Errorf("expected indented output, got %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" JSON ", FormatJSON, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"yaml", FormatText, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatter_ThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.Println("line %d", i)
			f.Warning("warn %d", i)
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 40 {
		t.Errorf("lines = %d, want 40", got)
	}
}
