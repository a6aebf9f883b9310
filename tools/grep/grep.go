// Package grep filters multi-line command output the way a shell pipeline
// through grep would, but in process.
package grep

import (
	"fmt"
	"regexp"
	"strings"
)

// Option configures a filter run.
type Option func(*config)

type config struct {
	matchCase bool
	invert    bool
	before    int
	after     int
	strip     bool
}

// MatchCase makes matching case-sensitive (matching ignores case by default).
func MatchCase() Option { return func(c *config) { c.matchCase = true } }

// Invert selects the lines that do not match. Context options are ignored
// when inverting.
func Invert() Option { return func(c *config) { c.invert = true } }

// Before includes n context lines before each match.
func Before(n int) Option { return func(c *config) { c.before = n } }

// After includes n context lines after each match.
func After(n int) Option { return func(c *config) { c.after = n } }

// Strip trims leading and trailing whitespace from each result line.
func Strip() Option { return func(c *config) { c.strip = true } }

// Output splits text on newlines and returns the lines matching pattern, in
// order. When pattern contains capture groups, the group text is returned
// instead of the whole line (multiple groups are joined with a single space).
func Output(text, pattern string, opts ...Option) ([]string, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.matchCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	lines := splitLines(text)

	var results []string
	if cfg.invert {
		for _, line := range lines {
			if !re.MatchString(line) {
				results = append(results, line)
			}
		}
	} else if cfg.before > 0 || cfg.after > 0 {
		results = withContext(lines, re, cfg.before, cfg.after)
	} else {
		for _, line := range lines {
			if m := re.FindStringSubmatch(line); m != nil {
				results = append(results, extract(m))
			}
		}
	}

	if cfg.strip {
		for i, r := range results {
			results[i] = strings.TrimSpace(r)
		}
	}
	return results, nil
}

// OutputString is Output joined into a single string on joinOn.
func OutputString(text, pattern, joinOn string, opts ...Option) (string, error) {
	results, err := Output(text, pattern, opts...)
	if err != nil {
		return "", err
	}
	return strings.Join(results, joinOn), nil
}

// withContext returns matching lines plus surrounding context, each line at
// most once. Capture groups are not extracted in this mode since context
// lines have no match to extract from.
func withContext(lines []string, re *regexp.Regexp, before, after int) []string {
	include := make([]bool, len(lines))
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		lo := i - before
		if lo < 0 {
			lo = 0
		}
		hi := i + after
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			include[j] = true
		}
	}

	var results []string
	for i, ok := range include {
		if ok {
			results = append(results, lines[i])
		}
	}
	return results
}

func extract(m []string) string {
	if len(m) == 1 {
		return m[0]
	}
	groups := make([]string, 0, len(m)-1)
	for _, g := range m[1:] {
		groups = append(groups, g)
	}
	return strings.Join(groups, " ")
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
