package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yml
var defaultRules []byte

// RulesConfig is the top-level structure of a rules file.
type RulesConfig struct {
	Rules []*Spec `yaml:"rules"`
}

// LoadSpecsFromFile loads rule specs from a YAML file.
func LoadSpecsFromFile(path string) ([]*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadSpecs(f)
}

// LoadSpecs loads rule specs from a reader.
func LoadSpecs(r io.Reader) ([]*Spec, error) {
	var config RulesConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	return config.Rules, nil
}

// DefaultSpecs returns the built-in rule set. Thresholds there are starting
// values meant to be overridden by a deployment's rules file.
func DefaultSpecs() []*Spec {
	specs, err := LoadSpecs(bytes.NewReader(defaultRules))
	if err != nil {
		panic("rules: embedded default rules are invalid: " + err.Error())
	}
	return specs
}

// LoadDefinitions builds rule definitions from path, or from the built-in set when path is empty.
func LoadDefinitions(path string) ([]*RuleDefinition, error) {
	specs := DefaultSpecs()
	if path != "" {
		var err error
		if specs, err = LoadSpecsFromFile(path); err != nil {
			return nil, err
		}
	}
	return BuildAll(specs)
}
