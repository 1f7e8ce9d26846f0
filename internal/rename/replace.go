// Package rename finds payees whose names start with a pattern and renames
// them with the matched prefix removed.
package rename

import (
	"regexp"
	"strings"

	"github.com/ynab-tools/ynab-bulk-rename/internal/model"
)

// MatchesPrefix reports whether pattern matches name starting at position 0.
// The pattern does not have to consume the whole name.
func MatchesPrefix(name string, pattern *regexp.Regexp) bool {
	loc := pattern.FindStringIndex(name)
	return loc != nil && loc[0] == 0
}

// ComputeReplacement removes the leading match of pattern from name and trims
// surrounding whitespace. Names the pattern does not match at position 0 are
// returned unchanged.
func ComputeReplacement(name string, pattern *regexp.Regexp) string {
	// The leftmost match starts at 0 whenever any match does.
	loc := pattern.FindStringIndex(name)
	if loc == nil || loc[0] != 0 {
		return name
	}
	return strings.TrimSpace(name[loc[1]:])
}

// Plan keeps the payees matching pattern, in input order, paired with their
// new names.
func Plan(payees []model.Payee, pattern *regexp.Regexp) []model.RenameOp {
	var ops []model.RenameOp
	for _, p := range payees {
		if !MatchesPrefix(p.Name, pattern) {
			continue
		}
		ops = append(ops, model.RenameOp{
			Payee:   p,
			NewName: ComputeReplacement(p.Name, pattern),
		})
	}
	return ops
}
