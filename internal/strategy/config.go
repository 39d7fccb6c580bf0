package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Config 是策略参数，内置策略共用同一结构。
type Config struct {
	MinConfidence      float64 `toml:"min_confidence" json:"min_confidence" yaml:"min_confidence"`
	BullishThreshold   float64 `toml:"bullish_threshold" json:"bullish_threshold" yaml:"bullish_threshold"`
	BearishThreshold   float64 `toml:"bearish_threshold" json:"bearish_threshold" yaml:"bearish_threshold"`
	MaxPositionPercent float64 `toml:"max_position_percent" json:"max_position_percent" yaml:"max_position_percent"`
	MinPositionPercent float64 `toml:"min_position_percent" json:"min_position_percent" yaml:"min_position_percent"`
	StableToken        string  `toml:"stable_token" json:"stable_token" yaml:"stable_token"`
	RiskToken          string  `toml:"risk_token" json:"risk_token,omitempty" yaml:"risk_token,omitempty"`
	ChainID            int64   `toml:"chain_id" json:"chain_id" yaml:"chain_id"`
}

// BaseConfig is the default parameter set of the built-in strategies.
func BaseConfig() Config {
	return Config{
		MinConfidence:      0.6,
		BullishThreshold:   30,
		BearishThreshold:   -30,
		MaxPositionPercent: 25,
		MinPositionPercent: 5,
		StableToken:        "USDC",
		RiskToken:          "ETH",
		ChainID:            8453,
	}
}

const configSchemaYAML = `
type: object
required: [min_confidence, bullish_threshold, bearish_threshold, max_position_percent, min_position_percent, stable_token]
properties:
  min_confidence:
    type: number
    minimum: 0
    maximum: 1
  bullish_threshold:
    type: number
    exclusiveMinimum: 0
    maximum: 100
  bearish_threshold:
    type: number
    minimum: -100
    exclusiveMaximum: 0
  max_position_percent:
    type: number
    exclusiveMinimum: 0
    maximum: 100
  min_position_percent:
    type: number
    minimum: 0
    maximum: 100
  stable_token:
    type: string
    minLength: 1
  risk_token:
    type: string
  chain_id:
    type: integer
    minimum: 0
`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(configSchemaYAML), &doc); err != nil {
			schemaErr = fmt.Errorf("parse strategy schema: %w", err)
			return
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("strategy.json", strings.NewReader(string(raw))); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("strategy.json")
	})
	return compiledSchema, schemaErr
}

// Validate checks cfg against the JSON schema and cross-field rules.
func (c Config) Validate() error {
	schema, err := configSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("strategy config invalid: %w", err)
	}
	if c.MinPositionPercent > c.MaxPositionPercent {
		return fmt.Errorf("strategy config invalid: min_position_percent %.2f > max_position_percent %.2f",
			c.MinPositionPercent, c.MaxPositionPercent)
	}
	return nil
}

// WithParams overlays params (as found in the config file) on top of c.
func (c Config) WithParams(params map[string]any) (Config, error) {
	if len(params) == 0 {
		return c, nil
	}
	out := c
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(params); err != nil {
		return c, fmt.Errorf("decode strategy params: %w", err)
	}
	return out, nil
}

// YAML renders c the way it would appear under strategy.params.
func (c Config) YAML() (string, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
