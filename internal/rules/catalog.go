package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

// Catalog is the registry of alert-producing rules. Registration fails fast on
// incomplete definitions and on alert types that do not exist.
type Catalog struct {
	mu         sync.RWMutex
	rules      []*RuleDefinition
	byID       map[string]*RuleDefinition
	alertTypes map[string]model.AlertType
}

func NewCatalog(alertTypes []model.AlertType) *Catalog {
	types := make(map[string]model.AlertType, len(alertTypes))
	for _, t := range alertTypes {
		types[t.Code] = t
	}
	return &Catalog{
		byID:       make(map[string]*RuleDefinition),
		alertTypes: types,
	}
}

// Register adds a rule. A rule referencing an unknown alert type is a data
// integrity error and must stop startup.
func (c *Catalog) Register(def *RuleDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.alertTypes[def.AlertType]; !ok {
		return apperrors.DataIntegrity("rule %q references unknown alert type %q", def.ID, def.AlertType)
	}
	if _, dup := c.byID[def.ID]; dup {
		return apperrors.Validation("rule %q is already registered", def.ID)
	}

	c.rules = append(c.rules, def)
	c.byID[def.ID] = def
	return nil
}

// RegisterAll registers every definition, stopping at the first error.
func (c *Catalog) RegisterAll(defs []*RuleDefinition) error {
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// ListApplicableRules returns the rules that apply to the patient, in registration order.
func (c *Catalog) ListApplicableRules(pc PatientContext) []*RuleDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*RuleDefinition, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Applicable(pc) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Catalog) Get(id string) (*RuleDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	return r, ok
}

// Rules returns all registered rules sorted by id.
func (c *Catalog) Rules() []*RuleDefinition {
	c.mu.RLock()
	out := make([]*RuleDefinition, len(c.rules))
	copy(out, c.rules)
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MaxCooldown is the longest cooldown of any rule; the scanner uses it as the
// horizon for loading recent alerts.
func (c *Catalog) MaxCooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var longest time.Duration
	for _, r := range c.rules {
		if r.Cooldown > longest {
			longest = r.Cooldown
		}
	}
	return longest
}
