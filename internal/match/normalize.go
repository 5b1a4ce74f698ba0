// Package match finds the stored application record a set of
// observations belongs to. Matching runs on the company and position
// pair: exact comparison first, then a token-overlap pass for close
// variants like "Acme Corp." against "Acme Corporation".
package match

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// punctReplacer strips punctuation that varies freely between job
// boards and mail templates without changing identity.
var punctReplacer = strings.NewReplacer(
	",", "",
	".", "",
	"'", "",
	"’", "",
	`"`, "",
	"&", " and ",
	"-", " ",
	"(", " ",
	")", " ",
	"/", " ",
	"|", " ",
)

// Normalize standardizes a company or position string for comparison:
// trimmed, case-folded, punctuation stripped, whitespace collapsed.
// Folding handles non-Latin scripts, so Hebrew names compare the same
// way Latin ones do.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = cases.Fold().String(s)
	s = punctReplacer.Replace(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens returns the normalized token set of s, deduplicated.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// jaccard computes token-set overlap in [0, 1]. Two empty sets score
// zero so blank fields never match anything.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	intersection := 0
	union := len(a)
	for _, t := range b {
		if _, ok := set[t]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
