package data

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type GeneratorDef struct {
	Output string  `yaml:"output"`
	Rate   float64 `yaml:"rate"` // units per second
}

type ProducerDef struct {
	Inputs  map[string]int `yaml:"inputs"`
	Outputs map[string]int `yaml:"outputs"`
	Rate    float64        `yaml:"rate"` // cycles per second
}

type MarketDef struct {
	Radius float64 `yaml:"radius"`
}

// BlueprintDef describes one building or unit template.
type BlueprintDef struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Price       float64            `yaml:"price"`
	Footprint   [2]int32           `yaml:"footprint"`
	Mesh        string             `yaml:"mesh"`
	Pickable    bool               `yaml:"pickable"`
	Trader      bool               `yaml:"trader"`
	Dwelling    bool               `yaml:"dwelling"` // used for population growth
	Merchant    bool               `yaml:"merchant"`
	Generator   *GeneratorDef      `yaml:"generator"`
	Producer    *ProducerDef       `yaml:"producer"`
	Demand      map[string]float64 `yaml:"demand"` // units per second
	Market      *MarketDef         `yaml:"market"`
}

// BlueprintTable holds all blueprint definitions in file order.
type BlueprintTable struct {
	defs   []*BlueprintDef
	byName map[string]*BlueprintDef
}

func (t *BlueprintTable) All() []*BlueprintDef { return t.defs }

// Get returns a blueprint by name, or nil if not found.
func (t *BlueprintTable) Get(name string) *BlueprintDef {
	return t.byName[name]
}

// Count returns the number of blueprints loaded.
func (t *BlueprintTable) Count() int {
	return len(t.defs)
}

type blueprintFile struct {
	Blueprints []*BlueprintDef `yaml:"blueprints"`
}

// LoadBlueprints loads blueprint definitions from a YAML file and checks every
// commodity reference against commodities.
func LoadBlueprints(path string, commodities *CommodityTable) (*BlueprintTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprints: %w", err)
	}
	t, err := ParseBlueprints(raw, commodities)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

func ParseBlueprints(raw []byte, commodities *CommodityTable) (*BlueprintTable, error) {
	var f blueprintFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	t := &BlueprintTable{byName: make(map[string]*BlueprintDef, len(f.Blueprints))}
	dwellings := 0
	for i, def := range f.Blueprints {
		if def == nil || def.Name == "" {
			return nil, fmt.Errorf("blueprint %d: missing name", i)
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate blueprint %q", def.Name)
		}
		if err := validateBlueprint(def, commodities); err != nil {
			return nil, fmt.Errorf("blueprint %q: %w", def.Name, err)
		}
		if def.Dwelling {
			dwellings++
		}
		t.byName[def.Name] = def
		t.defs = append(t.defs, def)
	}
	if dwellings > 1 {
		return nil, errors.New("more than one dwelling blueprint")
	}
	return t, nil
}

func validateBlueprint(def *BlueprintDef, commodities *CommodityTable) error {
	known := func(name string) error {
		if _, ok := commodities.Get(name); !ok {
			return fmt.Errorf("unknown commodity %q", name)
		}
		return nil
	}
	if !def.Merchant && (def.Footprint[0] <= 0 || def.Footprint[1] <= 0) {
		return fmt.Errorf("footprint %v must be positive", def.Footprint)
	}
	if g := def.Generator; g != nil {
		if err := known(g.Output); err != nil {
			return fmt.Errorf("generator: %w", err)
		}
		if g.Rate <= 0 {
			return errors.New("generator: rate must be positive")
		}
	}
	if p := def.Producer; p != nil {
		if p.Rate <= 0 {
			return errors.New("producer: rate must be positive")
		}
		for name := range p.Inputs {
			if err := known(name); err != nil {
				return fmt.Errorf("producer input: %w", err)
			}
		}
		for name := range p.Outputs {
			if err := known(name); err != nil {
				return fmt.Errorf("producer output: %w", err)
			}
		}
	}
	for name := range def.Demand {
		if err := known(name); err != nil {
			return fmt.Errorf("demand: %w", err)
		}
	}
	if m := def.Market; m != nil && m.Radius <= 0 {
		return errors.New("market: radius must be positive")
	}
	return nil
}
