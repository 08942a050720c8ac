package guardrails

import (
	"context"
	"regexp"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
)

type piiPattern struct {
	name    string
	pattern *regexp.Regexp
}

// PiiFilter is a local validator that redacts personally identifiable information
type PiiFilter struct {
	patterns []piiPattern
	action   aporia.Action
}

// NewPiiFilter creates a new PII filter
func NewPiiFilter(action aporia.Action) *PiiFilter {
	// Card numbers go before phone numbers so their digits are not eaten first
	patterns := []piiPattern{
		{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
		{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
		{"phone", regexp.MustCompile(`(\+\d{1,2}\s)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	}

	return &PiiFilter{
		patterns: patterns,
		action:   action,
	}
}

// Validate implements Validator
func (p *PiiFilter) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	modified := subject(req)
	triggered := false

	for _, pp := range p.patterns {
		if pp.pattern.MatchString(modified) {
			triggered = true
			modified = pp.pattern.ReplaceAllString(modified, "[REDACTED "+pp.name+"]")
		}
	}

	if !triggered {
		return passthrough(), nil
	}
	return decision(p.action, modified), nil
}
