// Package config loads and validates the bot configuration document:
// credentials, API keys, and run settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PhoneConfig is the rendered view of a credential's phone number.
type PhoneConfig struct {
	CountryCode string `json:"countryCode"`
	Number      string `json:"number"`
	Full        string `json:"full"`
}

// Credentials holds the sign-up identity used across an entire run.
type Credentials struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
}

// FullName concatenates first and last name, trimmed.
func (c Credentials) FullName() string {
	full := c.FirstName
	if c.LastName != "" {
		if full != "" {
			full += " "
		}
		full += c.LastName
	}
	return full
}

// RenderPhone renders the credential's phone config.
func (c Credentials) RenderPhone() PhoneConfig {
	cc := c.CountryCode
	if cc == "" {
		cc = "+1"
	}
	return PhoneConfig{
		CountryCode: cc,
		Number:      c.Phone,
		Full:        cc + c.Phone,
	}
}

// APIKeys holds external service credentials.
type APIKeys struct {
	OpenAI  string `json:"openai"`
	Captcha string `json:"captcha"`
}

// Settings controls run behaviour; field ranges are clamped by Validate.
type Settings struct {
	DataSource     string `json:"dataSource"`
	CSVPath        string `json:"csvPath"`
	MetaKeywords   string `json:"metaKeywords"`
	AdLimit        int    `json:"adLimit"`
	MaxSignups     int    `json:"maxSignups"`
	Headless       bool   `json:"headless"`
	Debug          bool   `json:"debug"`
	DetailedLogs   bool   `json:"detailedLogs"`
	MinDelay       int    `json:"minDelay"`
	MaxDelay       int    `json:"maxDelay"`
	LLMModel       string `json:"llmModel"`
	BatchPlanning  bool   `json:"batchPlanning"`
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate clamps out-of-range settings in place, mirroring the
// distilled spec's field_validator ranges.
func (s *Settings) Validate() {
	if s.AdLimit == 0 {
		s.AdLimit = 20
	}
	s.AdLimit = clamp(s.AdLimit, 5, 100)

	if s.MaxSignups == 0 {
		s.MaxSignups = 30
	}
	s.MaxSignups = clamp(s.MaxSignups, 1, 100)

	if s.MinDelay == 0 {
		s.MinDelay = 10
	}
	s.MinDelay = clamp(s.MinDelay, 5, 60)

	if s.MaxDelay == 0 {
		s.MaxDelay = 30
	}
	s.MaxDelay = clamp(s.MaxDelay, 10, 120)

	if s.LLMModel == "" {
		s.LLMModel = "gpt-4o-mini"
	}
	if s.DataSource == "" {
		s.DataSource = "meta"
	}
}

// BotConfig is the complete configuration document.
type BotConfig struct {
	Credentials Credentials `json:"credentials"`
	APIKeys     APIKeys     `json:"apiKeys"`
	Settings    Settings    `json:"settings"`
}

// Load reads and validates a configuration document from path.
func Load(path string) (*BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg BotConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Settings.Validate()
	return &cfg, nil
}

// MergeCredentialsJSON overlays a JSON credentials blob (as passed via
// the --credentials CLI flag) onto an existing config.
func (c *BotConfig) MergeCredentialsJSON(raw string) error {
	if raw == "" {
		return nil
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}
	c.Credentials = creds
	return nil
}

// Save writes the document back to disk, pretty-printed.
func (c *BotConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
