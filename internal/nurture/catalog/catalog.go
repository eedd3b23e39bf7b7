// Package catalog holds the nurture sequence templates. The catalog is a
// versioned artifact embedded at build time, loaded and validated once at
// process start, and never mutated afterwards.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sequences.yaml
var sequencesYAML []byte

// Channel is the delivery channel of a nurture step.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Sequence keys. The catalog is a fixed set; selection only ever returns
// one of these.
const (
	KeyAwareness     = "awareness"
	KeyConsideration = "consideration"
	KeyDecision      = "decision"
	KeyReEngagement  = "re_engagement"
)

var requiredKeys = []string{KeyAwareness, KeyConsideration, KeyDecision, KeyReEngagement}

// allowedTokens is the closed set of substitution tokens step templates
// may reference. Anything else is a catalog defect and fails validation.
var allowedTokens = map[string]bool{
	"firstName":     true,
	"lastName":      true,
	"practiceName":  true,
	"practicePhone": true,
	"bookingLink":   true,
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)

// Step is one outbound touch in a sequence. DelayDays is relative to the
// previous step's send; the first step of every sequence has delay 0.
type Step struct {
	Number    int     `yaml:"number" json:"number"`
	Channel   Channel `yaml:"channel" json:"channel"`
	Category  string  `yaml:"category" json:"category"`
	DelayDays int     `yaml:"delayDays" json:"delayDays"`
	Subject   string  `yaml:"subject" json:"subject,omitempty"`
	Body      string  `yaml:"body" json:"body"`
}

// Sequence is an ordered, immutable campaign template. AvgConversionRate
// is historical reporting data and never feeds routing decisions.
type Sequence struct {
	Key               string  `yaml:"key" json:"key"`
	Name              string  `yaml:"name" json:"name"`
	TargetAudience    string  `yaml:"targetAudience" json:"targetAudience"`
	AvgConversionRate float64 `yaml:"avgConversionRate" json:"avgConversionRate"`
	Steps             []Step  `yaml:"steps" json:"steps"`
}

// TotalSteps returns the number of steps in the sequence.
func (s Sequence) TotalSteps() int { return len(s.Steps) }

// Step returns the 1-based step, or false when the number is out of range.
func (s Sequence) Step(number int) (Step, bool) {
	if number < 1 || number > len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[number-1], true
}

// Catalog is the full set of sequence templates at a given version.
type Catalog struct {
	Version   int        `yaml:"version"`
	Sequences []Sequence `yaml:"sequences"`

	byKey map[string]Sequence
}

// Get returns the sequence for a key, or false when unknown.
func (c *Catalog) Get(key string) (Sequence, bool) {
	seq, ok := c.byKey[key]
	return seq, ok
}

// All returns the sequences in catalog order.
func (c *Catalog) All() []Sequence { return c.Sequences }

// Load parses and validates the embedded catalog. Called once from the
// composition root; a broken catalog is a build defect, so any error here
// should abort startup.
func Load() (*Catalog, error) {
	return parse(sequencesYAML)
}

func parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse sequence catalog: %w", err)
	}
	if cat.Version < 1 {
		return nil, fmt.Errorf("sequence catalog version must be >= 1, got %d", cat.Version)
	}

	cat.byKey = make(map[string]Sequence, len(cat.Sequences))
	for _, seq := range cat.Sequences {
		if err := validateSequence(seq); err != nil {
			return nil, err
		}
		if _, dup := cat.byKey[seq.Key]; dup {
			return nil, fmt.Errorf("sequence %q: duplicate key", seq.Key)
		}
		cat.byKey[seq.Key] = seq
	}

	for _, key := range requiredKeys {
		if _, ok := cat.byKey[key]; !ok {
			return nil, fmt.Errorf("sequence catalog is missing the %q sequence", key)
		}
	}

	return &cat, nil
}

func validateSequence(seq Sequence) error {
	if seq.Key == "" {
		return fmt.Errorf("sequence with empty key")
	}
	if len(seq.Steps) == 0 {
		return fmt.Errorf("sequence %q has no steps", seq.Key)
	}
	if seq.AvgConversionRate < 0 || seq.AvgConversionRate > 1 {
		return fmt.Errorf("sequence %q: avgConversionRate %v out of [0,1]", seq.Key, seq.AvgConversionRate)
	}

	for i, step := range seq.Steps {
		if step.Number != i+1 {
			return fmt.Errorf("sequence %q step %d: number must be %d, got %d", seq.Key, i+1, i+1, step.Number)
		}
		if step.Channel != ChannelEmail && step.Channel != ChannelSMS {
			return fmt.Errorf("sequence %q step %d: unknown channel %q", seq.Key, step.Number, step.Channel)
		}
		if step.DelayDays < 0 {
			return fmt.Errorf("sequence %q step %d: negative delay", seq.Key, step.Number)
		}
		if i == 0 && step.DelayDays != 0 {
			return fmt.Errorf("sequence %q: first step must have delay 0, got %d", seq.Key, step.DelayDays)
		}
		if strings.TrimSpace(step.Body) == "" {
			return fmt.Errorf("sequence %q step %d: empty body", seq.Key, step.Number)
		}
		if step.Channel == ChannelEmail && strings.TrimSpace(step.Subject) == "" {
			return fmt.Errorf("sequence %q step %d: email step needs a subject", seq.Key, step.Number)
		}
		if err := validateTokens(seq.Key, step.Number, step.Subject); err != nil {
			return err
		}
		if err := validateTokens(seq.Key, step.Number, step.Body); err != nil {
			return err
		}
	}
	return nil
}

func validateTokens(key string, step int, text string) error {
	for _, match := range tokenPattern.FindAllStringSubmatch(text, -1) {
		if !allowedTokens[match[1]] {
			return fmt.Errorf("sequence %q step %d: unknown token {{%s}}", key, step, match[1])
		}
	}
	return nil
}
