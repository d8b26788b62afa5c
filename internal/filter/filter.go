// Package filter validates comparison prompts before any provider is called.
//
// A prompt is rejected when it is not a non-empty string, when it is longer
// than the configured maximum, or when it matches the content denylist.
// Denylist matching is a plain case-insensitive substring scan, so a keyword
// also matches inside longer words ("shack" contains "hack").
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentinel errors returned (wrapped) by Validate. Use errors.Is to classify.
var (
	ErrInvalidType          = errors.New("invalid prompt provided")
	ErrTooLong              = errors.New("prompt too long")
	ErrInappropriateContent = errors.New("inappropriate content detected")
)

// RejectionError carries the caller-facing message for a rejected prompt.
type RejectionError struct {
	Kind    error
	Message string
}

func (e *RejectionError) Error() string { return e.Message }
func (e *RejectionError) Unwrap() error { return e.Kind }

// Filter holds the compiled validation rules. It has no mutable state and is
// safe for concurrent use.
type Filter struct {
	maxLength int
	keywords  []string
	patterns  []*regexp.Regexp
}

// New compiles a Filter. Keywords are matched case-insensitively; patterns
// are Go regular expressions matched against the prompt as given. Returns an
// error if any pattern fails to compile so that misconfiguration is caught at
// startup.
func New(maxLength int, keywords, patterns []string) (*Filter, error) {
	f := &Filter{maxLength: maxLength}

	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.keywords = append(f.keywords, k)
		}
	}

	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}

	return f, nil
}

// MaxLength returns the configured maximum prompt length in characters.
func (f *Filter) MaxLength() int { return f.maxLength }

// Validate checks a decoded "prompt" field and returns it trimmed of
// surrounding whitespace. v is whatever the JSON decoder produced; anything
// other than a string is rejected as ErrInvalidType.
//
// Length is counted in Unicode code points on the prompt as sent. A prompt
// of exactly MaxLength characters is accepted.
func (f *Filter) Validate(v any) (string, error) {
	prompt, ok := v.(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return "", &RejectionError{Kind: ErrInvalidType, Message: "Invalid prompt provided"}
	}

	if utf8.RuneCountInString(prompt) > f.maxLength {
		return "", &RejectionError{
			Kind:    ErrTooLong,
			Message: fmt.Sprintf("Prompt too long. Maximum %d characters allowed.", f.maxLength),
		}
	}

	if f.denied(prompt) {
		return "", &RejectionError{Kind: ErrInappropriateContent, Message: "Inappropriate content detected"}
	}

	return strings.TrimSpace(prompt), nil
}

func (f *Filter) denied(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(prompt) {
			return true
		}
	}
	return false
}

// Reason returns a short metrics label for a Validate error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrTooLong):
		return "too_long"
	case errors.Is(err, ErrInappropriateContent):
		return "inappropriate_content"
	default:
		return "unknown"
	}
}
