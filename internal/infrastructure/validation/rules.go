// Package validation checks draft fields against declarative rules loaded
// from a YAML file, so reviewers can tune policy without a rebuild.
package validation

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/docuflow/capture/internal/core/domain"
)

// FieldRule is one field's validation policy as written in the rules file.
type FieldRule struct {
	Required  bool   `yaml:"required"`
	Pattern   string `yaml:"pattern"`
	MaxLength int    `yaml:"max_length"`
	Severity  string `yaml:"severity"`
	Message   string `yaml:"message"`
}

type ruleFile struct {
	Fields map[string]FieldRule `yaml:"fields"`
}

type compiledRule struct {
	rule    FieldRule
	pattern *regexp.Regexp
}

// DefaultRules is the built-in policy used when no rules file is configured.
func DefaultRules() map[string]FieldRule {
	return map[string]FieldRule{
		domain.FieldDate: {
			Required: true,
			Pattern:  `^\d{4}-\d{2}-\d{2}$`,
			Severity: string(domain.SeverityError),
			Message:  "Date must be in YYYY-MM-DD format.",
		},
		domain.FieldAmount: {
			Required: true,
			Pattern:  `^\d+([.,]\d{1,2})?$`,
			Severity: string(domain.SeverityError),
			Message:  "Amount must be a number like 12.50.",
		},
		domain.FieldVendor: {
			Required:  true,
			MaxLength: 120,
			Severity:  string(domain.SeverityError),
			Message:   "Vendor is required.",
		},
		domain.FieldCategory: {
			Required: true,
			Severity: string(domain.SeverityWarning),
			Message:  "Pick a category so reporting stays accurate.",
		},
		domain.FieldTaxNumber: {
			Pattern:  `^[A-Za-z0-9 .\-/]*$`,
			Severity: string(domain.SeverityWarning),
			Message:  "Tax number contains unexpected characters.",
		},
		domain.FieldNotes: {
			MaxLength: 4000,
			Severity:  string(domain.SeverityWarning),
			Message:   "Notes are unusually long.",
		},
	}
}

type Validator struct {
	rules map[string]compiledRule
}

// New compiles a rule set. Unknown field names are rejected so a typo in the
// rules file fails at startup instead of silently never firing.
func New(rules map[string]FieldRule) (*Validator, error) {
	known := make(map[string]bool, len(domain.DraftFieldNames))
	for _, name := range domain.DraftFieldNames {
		known[name] = true
	}

	compiled := make(map[string]compiledRule, len(rules))
	for field, rule := range rules {
		if !known[field] {
			return nil, fmt.Errorf("validation rule for unknown field %q", field)
		}
		if rule.Severity != string(domain.SeverityError) && rule.Severity != string(domain.SeverityWarning) {
			return nil, fmt.Errorf("validation rule for %q has invalid severity %q", field, rule.Severity)
		}
		entry := compiledRule{rule: rule}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("compile pattern for %q: %w", field, err)
			}
			entry.pattern = re
		}
		compiled[field] = entry
	}
	return &Validator{rules: compiled}, nil
}

// Load reads a YAML rules file. An empty path yields the default policy.
func Load(path string) (*Validator, error) {
	if path == "" {
		return New(DefaultRules())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, fmt.Errorf("rules file %s defines no fields", path)
	}
	return New(file.Fields)
}

// Validate runs every rule against the draft fields and returns findings
// keyed by field name. Fields with no findings are absent from the map.
func (v *Validator) Validate(fields map[string]string) map[string][]domain.FieldError {
	findings := make(map[string][]domain.FieldError)
	for field, entry := range v.rules {
		value := fields[field]
		if finding, ok := entry.check(value); ok {
			findings[field] = append(findings[field], finding)
		}
	}
	return findings
}

func (e compiledRule) check(value string) (domain.FieldError, bool) {
	fail := func(code string) (domain.FieldError, bool) {
		return domain.FieldError{
			Code:     code,
			Message:  e.rule.Message,
			Severity: domain.Severity(e.rule.Severity),
		}, true
	}

	if value == "" {
		if e.rule.Required {
			return fail("required")
		}
		return domain.FieldError{}, false
	}
	if e.rule.MaxLength > 0 && len(value) > e.rule.MaxLength {
		return fail("too_long")
	}
	if e.pattern != nil && !e.pattern.MatchString(value) {
		return fail("pattern_mismatch")
	}
	return domain.FieldError{}, false
}
