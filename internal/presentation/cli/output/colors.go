package output

import (
	"os"
	"sync"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
	colorMu      sync.Mutex
)

// IsColorSupported reports whether stdout should receive ANSI colors. The
// answer is computed once per process; see colorFromEnv for the rules.
func IsColorSupported() bool {
	colorMu.Lock()
	defer colorMu.Unlock()
	colorOnce.Do(func() {
		colorEnabled = colorFromEnv(os.LookupEnv, stdoutIsTerminal())
	})
	return colorEnabled
}

// ResetColorDetection forgets the cached answer so the next call to
// IsColorSupported looks at the environment again.
func ResetColorDetection() {
	colorMu.Lock()
	defer colorMu.Unlock()
	colorOnce = sync.Once{}
}

// colorFromEnv decides on color in precedence order: NO_COLOR
// (https://no-color.org/), then FORCE_COLOR or CLICOLOR_FORCE, then
// CLICOLOR=0, then an interactive terminal that is not "dumb".
func colorFromEnv(lookup func(string) (string, bool), tty bool) bool {
	if _, ok := lookup("NO_COLOR"); ok {
		return false
	}
	if _, ok := lookup("FORCE_COLOR"); ok {
		return true
	}
	if v, ok := lookup("CLICOLOR_FORCE"); ok && v != "" && v != "0" {
		return true
	}
	if v, ok := lookup("CLICOLOR"); ok && v == "0" {
		return false
	}
	if !tty {
		return false
	}
	term, _ := lookup("TERM")
	return term != "" && term != "dumb"
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
