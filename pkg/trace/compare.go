package trace

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Result describes how an actual trace differs from the expected one
type Result struct {
	Match bool

	// Divergence is the index of the first differing entry, -1 on a match
	Divergence int

	// Missing holds expected entries that never appeared, Unexpected the
	// entries that appeared without being expected. Both respect
	// multiplicity.
	Missing    []string
	Unexpected []string

	// Diff is a unified diff from expected to actual, empty on a match
	Diff string
}

// MismatchError is returned by Result.Err when the traces differ
type MismatchError struct {
	Result Result
}

func (e *MismatchError) Error() string {
	r := e.Result
	return fmt.Sprintf("trace mismatch at entry %d (%d missing, %d unexpected)",
		r.Divergence, len(r.Missing), len(r.Unexpected))
}

// Err returns nil on a match and a *MismatchError otherwise
func (r Result) Err() error {
	if r.Match {
		return nil
	}
	return &MismatchError{Result: r}
}

// Reordered reports whether both traces hold the same entries in a
// different order
func (r Result) Reordered() bool {
	return !r.Match && len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// Compare checks an actual trace against the expected one
func Compare(expected, actual []string) Result {
	result := Result{Divergence: firstDivergence(expected, actual)}
	if result.Divergence < 0 {
		result.Match = true
		return result
	}

	result.Missing, result.Unexpected = multisetDifference(expected, actual)
	result.Diff = UnifiedDiff("expected", "actual", expected, actual)

	return result
}

func firstDivergence(expected, actual []string) int {
	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}

	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			return i
		}
	}

	if len(expected) != len(actual) {
		return n
	}

	return -1
}

func multisetDifference(expected, actual []string) (missing, unexpected []string) {
	counts := make(map[string]int, len(actual))
	for _, entry := range actual {
		counts[entry]++
	}

	for _, entry := range expected {
		if counts[entry] > 0 {
			counts[entry]--
			continue
		}
		missing = append(missing, entry)
	}

	for _, entry := range actual {
		if counts[entry] > 0 {
			counts[entry]--
			unexpected = append(unexpected, entry)
		}
	}

	return missing, unexpected
}

// UnifiedDiff renders two traces, one entry per line, as a unified diff
func UnifiedDiff(aName, bName string, a, b []string) string {
	aText := joinLines(a)
	bText := joinLines(b)

	return fmt.Sprint(gotextdiff.ToUnified(
		aName,
		bName,
		aText,
		myers.ComputeEdits(span.URIFromPath(aName), aText, bText),
	))
}

func joinLines(entries []string) string {
	if len(entries) == 0 {
		return ""
	}
	return strings.Join(entries, "\n") + "\n"
}
