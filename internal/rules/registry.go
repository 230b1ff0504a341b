package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

// Spec is the configuration of one rule as written in the rules file.
type Spec struct {
	ID          string   `yaml:"id"`
	Kind        string   `yaml:"kind"`
	AlertType   string   `yaml:"alert_type"`
	Description string   `yaml:"description,omitempty"`
	Severity    string   `yaml:"severity"`
	Window      string   `yaml:"window"`
	Cooldown    string   `yaml:"cooldown,omitempty"`
	Conditions  []string `yaml:"conditions,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
	// Params are decoded by the kind's builder.
	Params yaml.Node `yaml:"params"`
}

// IsEnabled returns whether the rule is enabled.
func (s *Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DecodeParams decodes the params block into out. An absent block leaves out untouched.
func (s *Spec) DecodeParams(out interface{}) error {
	if s.Params.Kind == 0 {
		return nil
	}
	if err := s.Params.Decode(out); err != nil {
		return apperrors.Validation("invalid params for rule %q: %v", s.ID, err)
	}
	return nil
}

// Builder turns a spec into a predicate and the data kinds it reads.
type Builder func(spec *Spec) (Predicate, []model.DataKind, error)

var (
	kindsMu sync.RWMutex
	kinds   = make(map[string]Builder)
)

// RegisterKind makes a rule kind available to Build. It panics if the kind
// is registered twice or the builder is nil.
func RegisterKind(kind string, b Builder) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if b == nil {
		panic("rules: RegisterKind builder is nil")
	}
	if _, dup := kinds[kind]; dup {
		panic("rules: RegisterKind called twice for kind " + kind)
	}
	kinds[kind] = b
}

// Kinds lists the registered rule kinds.
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build validates the spec and produces a rule definition.
func Build(spec *Spec) (*RuleDefinition, error) {
	if spec.ID == "" {
		return nil, apperrors.Validation("rule id is required")
	}

	kindsMu.RLock()
	builder, ok := kinds[spec.Kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, apperrors.Validation("unknown kind %q for rule %q", spec.Kind, spec.ID)
	}

	severity, err := model.ParseSeverity(spec.Severity)
	if err != nil {
		return nil, apperrors.Validation("rule %q: %v", spec.ID, err)
	}
	window, err := ParseDuration(spec.Window)
	if err != nil {
		return nil, apperrors.Validation("invalid window %q for rule %q: %v", spec.Window, spec.ID, err)
	}
	var cooldown time.Duration
	if spec.Cooldown != "" {
		if cooldown, err = ParseDuration(spec.Cooldown); err != nil {
			return nil, apperrors.Validation("invalid cooldown %q for rule %q: %v", spec.Cooldown, spec.ID, err)
		}
	}

	pred, needs, err := builder(spec)
	if err != nil {
		return nil, err
	}
	if len(spec.Conditions) > 0 {
		pred = conditional{Predicate: pred, conditions: spec.Conditions}
	}

	def := &RuleDefinition{
		ID:          spec.ID,
		Kind:        spec.Kind,
		AlertType:   spec.AlertType,
		Description: spec.Description,
		Severity:    severity,
		Window:      window,
		Cooldown:    cooldown,
		Needs:       needs,
		Predicate:   pred,
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// BuildAll builds every enabled spec.
func BuildAll(specs []*Spec) ([]*RuleDefinition, error) {
	defs := make([]*RuleDefinition, 0, len(specs))
	for i, s := range specs {
		if !s.IsEnabled() {
			continue
		}
		def, err := Build(s)
		if err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseDuration is time.ParseDuration plus a whole-day "d" suffix, e.g. "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// duration decodes YAML duration strings in params.
type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}
