// Package screen implements the gateway's content security checks: prompt
// injection screening and PII redaction. Both are pure functions over the
// input text and are safe for concurrent use.
package screen

import (
	"fmt"
	"regexp"
	"strings"
)

// InjectionFlag is the risk flag recorded when injection screening trips.
const InjectionFlag = "PROMPT_INJECTION"

// Rule pairs a redaction category with its detection pattern. Rules are
// evaluated in slice order so placeholder substitution is reproducible.
type Rule struct {
	Category string
	Pattern  *regexp.Regexp
}

// defaultRules covers the built-in redaction categories. The credit card
// pattern deliberately matches any 13-16 digit run with optional separators;
// it is a broad heuristic, not a Luhn-validated detector.
var defaultRules = []Rule{
	{Category: "EMAIL", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{Category: "PHONE", Pattern: regexp.MustCompile(`\b1[3-9]\d{9}\b`)},
	{Category: "CREDIT_CARD", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
	{Category: "IPV4", Pattern: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// defaultInjectionPhrases are known manipulation markers, matched
// case-insensitively as substrings.
var defaultInjectionPhrases = []string{
	"ignore previous instructions",
	"system prompt",
	"忽略之前的指令",
	"drop table",
	"exec(",
}

// Screen holds the ordered rule set used for injection screening and
// redaction.
type Screen struct {
	rules            []Rule
	injectionPhrases []string
}

// New returns a Screen with the built-in rules and injection phrases.
func New() *Screen {
	return &Screen{
		rules:            defaultRules,
		injectionPhrases: defaultInjectionPhrases,
	}
}

// NewWithRules returns a Screen with a caller-supplied rule set, evaluated in
// the given order.
func NewWithRules(rules []Rule, injectionPhrases []string) *Screen {
	return &Screen{rules: rules, injectionPhrases: injectionPhrases}
}

// ScreenForInjection reports whether the text contains a known manipulation
// phrase. Matching is case-insensitive and short-circuits on the first hit.
func (s *Screen) ScreenForInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range s.injectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Redact replaces every occurrence of each matching category's pattern with a
// category-tagged placeholder and returns the sanitized text plus the list of
// triggered categories in detection order. Each category is reported at most
// once regardless of occurrence count.
func (s *Screen) Redact(text string) (string, []string) {
	var triggered []string
	sanitized := text

	for _, rule := range s.rules {
		if !rule.Pattern.MatchString(sanitized) {
			continue
		}
		triggered = append(triggered, rule.Category)
		sanitized = rule.Pattern.ReplaceAllString(sanitized, fmt.Sprintf("[%s_REDACTED]", rule.Category))
	}

	return sanitized, triggered
}
