package reporting

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
)

// DefaultNoiseSubstrings are stderr fragments emitted by the Robot Framework
// toolchain on every run that carry no information about the tests.
var DefaultNoiseSubstrings = []string{
	"allure_console_listener",
	"DebugLibrary",
	"PYTHONPATH",
	"InsecureRequestWarning",
	"urllib3",
	"warnings.warn(",
	"connectionpool.py",
	"Traceback (most recent call last):",
}

// NoiseFilter drops known-benign stderr lines from a result before it is
// reported. It never touches the lines a result was built from.
type NoiseFilter struct {
	substrings []string
	patterns   []*regexp.Regexp
}

// NewNoiseFilter builds a filter from the defaults plus extra regular
// expressions, typically from the suites file.
func NewNoiseFilter(extra []string) (*NoiseFilter, error) {
	f := &NoiseFilter{substrings: slices.Clone(DefaultNoiseSubstrings)}
	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid noise pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// IsNoise reports whether a stderr line should be hidden from reports.
func (f *NoiseFilter) IsNoise(line string) bool {
	line = stripansi.Strip(line)
	trimmed := strings.TrimSpace(line)
	if trimmed == "None" {
		return true
	}
	for _, s := range f.substrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Lines returns the lines that are not noise.
func (f *NoiseFilter) Lines(lines []execution.Line) []execution.Line {
	var out []execution.Line
	for _, l := range lines {
		if !f.IsNoise(l.Text) {
			out = append(out, l)
		}
	}
	return out
}

// Apply returns a shallow copy of res whose stderr has the noise removed.
// A nil filter returns res unchanged.
func (f *NoiseFilter) Apply(res *execution.Result) *execution.Result {
	if f == nil || res == nil {
		return res
	}
	filtered := *res
	filtered.Stderr = f.Lines(res.Stderr)
	return &filtered
}
