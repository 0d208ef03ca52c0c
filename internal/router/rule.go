package router

import (
	"regexp"

	"github.com/avolkov/mcprouter/internal/config"
)

// Pattern is a tagged variant matching routing keys: either a literal
// string (exact equality) or a compiled regular expression.
type Pattern struct {
	literal string
	regex   *regexp.Regexp
}

// LiteralPattern creates a pattern that matches a routing key exactly.
// The literal "*" matches every routing key and marks a catch-all rule.
func LiteralPattern(s string) Pattern {
	return Pattern{literal: s}
}

// RegexPattern creates a pattern that matches routing keys by regex.
func RegexPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{regex: re}, nil
}

// MustRegexPattern is like RegexPattern but panics on a bad expression.
// Intended for statically known rule tables.
func MustRegexPattern(expr string) Pattern {
	return Pattern{regex: regexp.MustCompile(expr)}
}

// IsRegex returns true for regex patterns.
func (p Pattern) IsRegex() bool {
	return p.regex != nil
}

// Matches reports whether the routing key matches the pattern.
func (p Pattern) Matches(key string) bool {
	if p.regex != nil {
		return p.regex.MatchString(key)
	}
	if p.literal == catchAllLiteral {
		return true
	}
	return p.literal == key
}

// IsCatchAll reports whether the pattern matches every routing key.
func (p Pattern) IsCatchAll() bool {
	if p.regex != nil {
		src := p.regex.String()
		return src == ".*" || src == "^.*$"
	}
	return p.literal == catchAllLiteral
}

// Equal reports pattern identity: string equality for literals, source
// equality for regexes.
func (p Pattern) Equal(other Pattern) bool {
	if (p.regex == nil) != (other.regex == nil) {
		return false
	}
	if p.regex != nil {
		return p.regex.String() == other.regex.String()
	}
	return p.literal == other.literal
}

// String returns the pattern source.
func (p Pattern) String() string {
	if p.regex != nil {
		return p.regex.String()
	}
	return p.literal
}

const catchAllLiteral = "*"

// Conditions further restrict which servers a rule may target.
type Conditions struct {
	Category     config.Category `json:"category,omitempty"`
	MinPriority  int             `json:"minPriority,omitempty"`
	RequiresAuth bool            `json:"requiresAuth,omitempty"`
}

// Satisfied reports whether a server meets the conditions.
func (c *Conditions) Satisfied(srv *config.ServerDescriptor) bool {
	if c == nil {
		return true
	}
	if c.Category != "" && srv.Category != c.Category {
		return false
	}
	if c.MinPriority > 0 && srv.Priority < c.MinPriority {
		return false
	}
	if c.RequiresAuth && !srv.HasAuth() {
		return false
	}
	return true
}

// Rule maps routing keys to a target server. Rules are evaluated sorted by
// priority descending; rules added later win ties with equal priority. A
// catch-all rule may leave ServerID empty to make every configured server a
// fallback candidate.
type Rule struct {
	Pattern    Pattern
	ServerID   string
	Priority   int
	Conditions *Conditions
}
