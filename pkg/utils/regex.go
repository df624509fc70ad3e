package utils

import (
	"regexp"
)

// CompileRegexPatterns compiles regex strings into usable *regexp.Regexp objects.
// Empty patterns are skipped. Returns an error wrapping ErrConfigValidation if any pattern is invalid.
func CompileRegexPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid regex pattern #%d ('%s'): %v", i+1, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// CompileCaseInsensitive compiles pattern with the (?i) flag.
// An empty pattern yields a nil regexp and no error.
func CompileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, WrapErrorf(ErrValidation, "invalid pattern '%s': %v", pattern, err)
	}
	return re, nil
}

// FirstGroupOrMatch returns capture group 1 of the first match of re in s when that
// group participated in the match, otherwise the full match. ok is false when re does not match.
func FirstGroupOrMatch(re *regexp.Regexp, s string) (value string, ok bool) {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return "", false
	}
	return groupOrMatch(s, loc), true
}

// AllGroupsOrMatches applies FirstGroupOrMatch semantics to every non-overlapping match of re in s.
func AllGroupsOrMatches(re *regexp.Regexp, s string) []string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	values := make([]string, 0, len(locs))
	for _, loc := range locs {
		values = append(values, groupOrMatch(s, loc))
	}
	return values
}

func groupOrMatch(s string, loc []int) string {
	if len(loc) >= 4 && loc[2] >= 0 {
		return s[loc[2]:loc[3]]
	}
	return s[loc[0]:loc[1]]
}
