package guardrail

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// EntityAlias maps a client entity_type onto the canonical form plus any
// dependent default attributes the canonical form requires.
type EntityAlias struct {
	Canonical string            `yaml:"canonical"`
	Defaults  map[string]string `yaml:"defaults"`
}

// Rules holds the fixed normalization tables. They are data, not code, so
// vertical teams can extend them without touching the passes.
type Rules struct {
	EntityAliases       map[string]EntityAlias `yaml:"entity_aliases"`
	TransactionSynonyms map[string]string      `yaml:"transaction_synonyms"`
}

// LoadRules parses the embedded rule tables.
func LoadRules() (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(rulesYAML, &r); err != nil {
		return nil, fmt.Errorf("failed to parse guardrail rules: %w", err)
	}
	return &r, nil
}
