// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// PIIFilterID identifies the PII filter.
const PIIFilterID = "pii-filter"

// PIIFilterMode determines how PII is replaced.
type PIIFilterMode int

const (
	// PIIFilterMask replaces PII with a placeholder such as "[EMAIL]".
	PIIFilterMask PIIFilterMode = iota
	// PIIFilterRedact removes PII entirely.
	PIIFilterRedact
	// PIIFilterHash replaces PII with a short stable hash, e.g. "[EMAIL_1a2b3c4d]".
	PIIFilterHash
)

// ParsePIIMode maps "mask", "redact" or "hash" to a mode.
func ParsePIIMode(s string) (PIIFilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mask":
		return PIIFilterMask, nil
	case "redact":
		return PIIFilterRedact, nil
	case "hash":
		return PIIFilterHash, nil
	}
	return 0, fmt.Errorf("unknown pii mode %q", s)
}

// PIIType categorizes PII.
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPAddress  PIIType = "ip_address"
)

type piiPattern struct {
	piiType PIIType
	pattern *regexp.Regexp
	label   string
}

// Order matters: card numbers and SSNs overlap with phone numbers.
var defaultPIIPatterns = []piiPattern{
	{PIITypeCreditCard, regexp.MustCompile(`\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`), "CREDIT_CARD"},
	{PIITypeSSN, regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`), "SSN"},
	{PIITypeEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "EMAIL"},
	{PIITypeIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "IP_ADDRESS"},
	{PIITypePhone, regexp.MustCompile(`\+[0-9]{1,3}[-.\s]?[0-9]{6,14}\b`), "PHONE"},
	{PIITypePhone, regexp.MustCompile(`\(?\b[0-9]{3}\)?[-.\s][0-9]{3}[-.\s][0-9]{4}\b`), "PHONE"},
}

// PIIFilter detects and replaces personally identifiable information.
type PIIFilter struct {
	mode    PIIFilterMode
	enabled map[PIIType]bool
}

// PIIFilterOption configures the PII filter.
type PIIFilterOption func(*PIIFilter)

// NewPIIFilter creates a filter covering every known PII type.
func NewPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) *PIIFilter {
	f := &PIIFilter{mode: mode, enabled: make(map[PIIType]bool)}
	for _, p := range defaultPIIPatterns {
		f.enabled[p.piiType] = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithPIITypes restricts the filter to the given types. No types keeps all.
func WithPIITypes(types ...PIIType) PIIFilterOption {
	return func(f *PIIFilter) {
		if len(types) == 0 {
			return
		}
		for k := range f.enabled {
			f.enabled[k] = false
		}
		for _, t := range types {
			f.enabled[t] = true
		}
	}
}

func (f *PIIFilter) ID() string { return PIIFilterID }

// FilterOutput replaces every enabled PII match.
func (f *PIIFilter) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	if output == "" {
		return result
	}
	for _, p := range defaultPIIPatterns {
		if !f.enabled[p.piiType] {
			continue
		}
		if ctx.Err() != nil {
			return result
		}
		matches := p.pattern.FindAllStringIndex(result.Content, -1)
		// Replace back to front so earlier offsets stay valid.
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][0], matches[i][1]
			replacement := f.replacement(p, result.Content[start:end])
			result.Redactions = append(result.Redactions, Redaction{
				Type:        string(p.piiType),
				Replacement: replacement,
				Position:    start,
			})
			result.Content = result.Content[:start] + replacement + result.Content[end:]
			result.Modified = true
		}
	}
	return result
}

func (f *PIIFilter) replacement(p piiPattern, original string) string {
	switch f.mode {
	case PIIFilterRedact:
		return ""
	case PIIFilterHash:
		h := fnv.New32a()
		_, _ = h.Write([]byte(original))
		return fmt.Sprintf("[%s_%08x]", p.label, h.Sum32())
	}
	return "[" + p.label + "]"
}

// CheckInput blocks input carrying any enabled PII type.
func (f *PIIFilter) CheckInput(ctx context.Context, input string) CheckResult {
	for _, p := range defaultPIIPatterns {
		if !f.enabled[p.piiType] || ctx.Err() != nil {
			continue
		}
		if p.pattern.MatchString(input) {
			return CheckResult{
				Blocked:     true,
				Reason:      "PII detected in input: " + string(p.piiType),
				GuardrailID: f.ID(),
				Confidence:  1,
			}
		}
	}
	return CheckResult{}
}

// WithPIIFilter adds PII filtering to the output.
func WithPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) Option {
	return WithOutputFilter(NewPIIFilter(mode, opts...))
}

// WithPIIInputChecker blocks input containing PII.
func WithPIIInputChecker(opts ...PIIFilterOption) Option {
	return WithInputChecker(NewPIIFilter(PIIFilterMask, opts...))
}
