// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"regexp"
)

// PromptInjectionID identifies the prompt injection detector.
const PromptInjectionID = "prompt-injection"

// PromptInjectionDetector flags messages that try to override the agent's
// instructions. Confidence grows with the number of matching patterns.
type PromptInjectionDetector struct {
	patterns  []*regexp.Regexp
	threshold float64
}

// PromptInjectionOption configures the detector.
type PromptInjectionOption func(*PromptInjectionDetector) error

var defaultInjectionPatterns = []string{
	// instruction override
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?)`,
	// persona switch
	`(?i)you\s+are\s+now\s+(a|an)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)roleplay\s+as\s+`,
	`(?i)(developer|debug|sudo|admin|maintenance|dan)\s+mode`,
	// prompt extraction
	`(?i)(what\s+(is|are)|show\s+me|reveal|print|display)\s+your\s+(system\s+)?(prompt|instructions?)`,
	// jailbreak
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|content|filter)`,
	// delimiter smuggling
	`(?i)\]\]\s*system\s*:`,
	`<\|[^|]*\|>`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
}

// NewPromptInjectionDetector compiles the default patterns plus any added
// through options. Any match blocks unless a threshold is set.
func NewPromptInjectionDetector(opts ...PromptInjectionOption) (*PromptInjectionDetector, error) {
	d := &PromptInjectionDetector{}
	for _, pattern := range defaultInjectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(pattern))
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// WithInjectionPatterns adds custom patterns.
func WithInjectionPatterns(patterns ...string) PromptInjectionOption {
	return func(d *PromptInjectionDetector) error {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("injection pattern %q: %w", pattern, err)
			}
			d.patterns = append(d.patterns, re)
		}
		return nil
	}
}

// WithInjectionThreshold sets the confidence needed to block, in [0, 1].
func WithInjectionThreshold(threshold float64) PromptInjectionOption {
	return func(d *PromptInjectionDetector) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("injection threshold %v out of range [0, 1]", threshold)
		}
		d.threshold = threshold
		return nil
	}
}

func (d *PromptInjectionDetector) ID() string { return PromptInjectionID }

// CheckInput scores the input. One match scores 0.7 and each further match
// adds 0.1, capped at 1.
func (d *PromptInjectionDetector) CheckInput(ctx context.Context, input string) CheckResult {
	if input == "" {
		return CheckResult{}
	}
	matches := 0
	for _, pattern := range d.patterns {
		if ctx.Err() != nil {
			return CheckResult{}
		}
		if pattern.MatchString(input) {
			matches++
		}
	}
	if matches == 0 {
		return CheckResult{}
	}
	confidence := min(float64(6+matches)/10, 1.0)
	if confidence < d.threshold {
		return CheckResult{Confidence: confidence}
	}
	return CheckResult{
		Blocked:     true,
		Reason:      "potential prompt injection detected",
		GuardrailID: d.ID(),
		Confidence:  confidence,
	}
}

// WithPromptInjectionDetector adds an already built detector as an input
// checker.
func WithPromptInjectionDetector(d *PromptInjectionDetector) Option {
	return WithInputChecker(d)
}
