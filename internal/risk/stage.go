package risk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// StageConfig is an equity-bracket-selected bundle of sizing parameters.
// A stage applies to all accounts whose total equity is at least MinEquity
// and below the next stage's MinEquity.
type StageConfig struct {
	MinEquity     float64 `yaml:"min_equity"`
	Leverage      int     `yaml:"leverage"`
	OpenRiskRatio float64 `yaml:"open_risk_ratio"` // Base risk ratio when opening a position
	AddRiskRatio  float64 `yaml:"add_risk_ratio"`  // Base risk ratio when adding to an existing one
	OpenCapRatio  float64 `yaml:"open_cap_ratio"`  // Hard cap ratio for opening
	AddCapRatio   float64 `yaml:"add_cap_ratio"`   // Hard cap ratio for adding (tighter)
}

// StageTable is an ordered set of stages. Selection is a pure lookup on
// total equity; the table carries no mutable state.
type StageTable []StageConfig

// DefaultStages returns the compiled-in stage brackets.
func DefaultStages() StageTable {
	return StageTable{
		{MinEquity: 0, Leverage: 5, OpenRiskRatio: 0.20, AddRiskRatio: 0.10, OpenCapRatio: 0.25, AddCapRatio: 0.15},
		{MinEquity: 500, Leverage: 10, OpenRiskRatio: 0.30, AddRiskRatio: 0.15, OpenCapRatio: 0.30, AddCapRatio: 0.20},
		{MinEquity: 5000, Leverage: 15, OpenRiskRatio: 0.35, AddRiskRatio: 0.18, OpenCapRatio: 0.40, AddCapRatio: 0.25},
		{MinEquity: 50000, Leverage: 20, OpenRiskRatio: 0.40, AddRiskRatio: 0.20, OpenCapRatio: 0.50, AddCapRatio: 0.30},
	}
}

// For selects the stage for the given total equity.
func (t StageTable) For(totalEquity float64) StageConfig {
	if len(t) == 0 {
		t = DefaultStages()
	}
	selected := t[0]
	for _, stage := range t {
		if totalEquity >= stage.MinEquity {
			selected = stage
		}
	}
	return selected
}

// Validate checks a stage table for usable values.
func (t StageTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("stage table is empty")
	}
	for i, s := range t {
		if s.Leverage <= 0 {
			return fmt.Errorf("stage %d: leverage must be positive", i)
		}
		if s.OpenRiskRatio <= 0 || s.AddRiskRatio <= 0 || s.OpenCapRatio <= 0 || s.AddCapRatio <= 0 {
			return fmt.Errorf("stage %d: ratios must be positive", i)
		}
		if s.MinEquity < 0 {
			return fmt.Errorf("stage %d: min_equity cannot be negative", i)
		}
	}
	return nil
}

// LoadStages reads a stage table from a yaml file and sorts it by bracket.
func LoadStages(path string) (StageTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage table %s: %w", path, err)
	}
	var wrapper struct {
		Stages StageTable `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse stage table %s: %w", path, err)
	}
	table := wrapper.Stages
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage table %s: %w", path, err)
	}
	sort.Slice(table, func(i, j int) bool { return table[i].MinEquity < table[j].MinEquity })
	return table, nil
}
