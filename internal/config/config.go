package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfirmationDepth is used when global.confirmation_depth is unset.
const DefaultConfirmationDepth = 5

// Config holds the YAML configuration.
type Config struct {
	Version int          `yaml:"version"`
	Global  GlobalConfig `yaml:"global"`
	Source  Source       `yaml:"source"`
	Tokens  Tokens       `yaml:"tokens"`
	Rules   []Rule       `yaml:"rules"`
	Sinks   []Sink       `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath            string `yaml:"db_path"`
	ConfirmationDepth int    `yaml:"confirmation_depth"`
}

type Source struct {
	ID       string   `yaml:"id"`
	RPCURL   string   `yaml:"rpc_url"`
	Contract string   `yaml:"contract"`
	Event    string   `yaml:"event"`
	ABIDirs  []string `yaml:"abi_dirs"`
}

// Token describes one side of the pool.
type Token struct {
	Symbol   string `yaml:"symbol"`
	Decimals *uint8 `yaml:"decimals"`
}

type Tokens struct {
	A Token `yaml:"a"`
	B Token `yaml:"b"`
}

type RateLimit struct {
	Capacity  float64 `yaml:"capacity"`
	PerSecond float64 `yaml:"per_second"`
}

type Rule struct {
	ID        string     `yaml:"id"`
	Where     []string   `yaml:"where"`
	Sinks     []string   `yaml:"sinks"`
	RateLimit *RateLimit `yaml:"rate_limit,omitempty"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	cfg, err := read(path, true)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadArchive loads the config for commands that only read the local
// archive. Unset environment variables interpolate as empty, and only the
// global section is validated, so node and sink credentials are not needed.
func LoadArchive(path string) (*Config, error) {
	cfg, err := read(path, false)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateGlobal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string, requireEnv bool) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw), requireEnv)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string, requireEnv bool) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if !requireEnv {
			return ""
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.ConfirmationDepth == 0 {
		c.Global.ConfirmationDepth = DefaultConfirmationDepth
	}
	if c.Global.DBPath == "" {
		c.Global.DBPath = "swap-watch.db"
	}
	if c.Source.ID == "" {
		c.Source.ID = "pool"
	}
	if c.Source.Event == "" {
		c.Source.Event = "Swap"
	}
	if c.Tokens.A.Symbol == "" {
		c.Tokens.A.Symbol = "A"
	}
	if c.Tokens.B.Symbol == "" {
		c.Tokens.B.Symbol = "B"
	}
	for i := range c.Sinks {
		if strings.ToLower(c.Sinks[i].Type) == "webhook" && c.Sinks[i].Method == "" {
			c.Sinks[i].Method = "POST"
		}
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if err := c.validateGlobal(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source %s: %w", c.Source.ID, err)
	}
	if err := c.Tokens.Validate(); err != nil {
		return err
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	ruleIDs := map[string]struct{}{}
	for _, r := range c.Rules {
		if _, exists := ruleIDs[r.ID]; exists {
			return fmt.Errorf("duplicate rule id: %s", r.ID)
		}
		ruleIDs[r.ID] = struct{}{}
		if err := r.Validate(sinkIDs); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return nil
}

func (c *Config) validateGlobal() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Global.ConfirmationDepth < 1 {
		return fmt.Errorf("global.confirmation_depth must be positive, got %d", c.Global.ConfirmationDepth)
	}
	return nil
}

func (s *Source) Validate() error {
	if s.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if s.Contract == "" {
		return errors.New("contract is required")
	}
	if !common.IsHexAddress(s.Contract) {
		return fmt.Errorf("contract %q is not a hex address", s.Contract)
	}
	return nil
}

func (t *Tokens) Validate() error {
	if t.A.Decimals == nil || t.B.Decimals == nil {
		return errors.New("tokens.a.decimals and tokens.b.decimals are required")
	}
	return nil
}

func (r *Rule) Validate(sinkIDs map[string]*Sink) error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if len(r.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}
	if r.RateLimit != nil {
		if r.RateLimit.Capacity <= 0 || r.RateLimit.PerSecond <= 0 {
			return errors.New("rate_limit.capacity and rate_limit.per_second must be positive")
		}
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
