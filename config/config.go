// Package config loads and validates the adaptor framework's recognized
// configuration keys on top of viper, and fans out change notifications
// when the backing file changes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a typed view over the recognized configuration key set.
// Command-line flags bound to the same viper keys override file config,
// matching the source's "-Dkey=value" override behavior.
type Config struct {
	ServerHostname string
	ServerPort     int
	DashboardPort  int
	DocIDPath      string
	Secure         bool
	KeyAlias       string
	GSAIps         []string

	GSAHostname         string
	GSACharacterEncoding string

	DocIDIsURL bool

	FeedName                     string
	FeedNoRecrawlBitEnabled      bool
	FeedCrawlImmediatelyBitEnabled bool
	FeedMaxURLs                  int

	AdaptorFullListingSchedule        string
	AdaptorIncrementalPollPeriod      time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the recognized keys from v, applying the configuration-keys
// table's defaults, and validates required keys.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("server.hostname", "")
	v.SetDefault("server.port", 5678)
	v.SetDefault("server.dashboardPort", 0)
	v.SetDefault("server.docIdPath", "/doc/")
	v.SetDefault("server.secure", false)
	v.SetDefault("server.keyAlias", "adaptor")
	v.SetDefault("server.gsaIps", "")
	v.SetDefault("gsa.characterEncoding", "UTF-8")
	v.SetDefault("docId.isUrl", false)
	v.SetDefault("feed.name", "testfeed")
	v.SetDefault("feed.noRecrawlBitEnabled", false)
	v.SetDefault("feed.crawlImmediatelyBitEnabled", false)
	v.SetDefault("feed.maxUrls", 5000)
	v.SetDefault("adaptor.fullListingSchedule", "@daily")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	cfg := &Config{
		ServerHostname:                 v.GetString("server.hostname"),
		ServerPort:                     v.GetInt("server.port"),
		DashboardPort:                  v.GetInt("server.dashboardPort"),
		DocIDPath:                      v.GetString("server.docIdPath"),
		Secure:                         v.GetBool("server.secure"),
		KeyAlias:                       v.GetString("server.keyAlias"),
		GSAIps:                         splitCSV(v.GetString("server.gsaIps")),
		GSAHostname:                    v.GetString("gsa.hostname"),
		GSACharacterEncoding:           v.GetString("gsa.characterEncoding"),
		DocIDIsURL:                     v.GetBool("docId.isUrl"),
		FeedName:                       v.GetString("feed.name"),
		FeedNoRecrawlBitEnabled:        v.GetBool("feed.noRecrawlBitEnabled"),
		FeedCrawlImmediatelyBitEnabled: v.GetBool("feed.crawlImmediatelyBitEnabled"),
		FeedMaxURLs:                    v.GetInt("feed.maxUrls"),
		AdaptorFullListingSchedule:     v.GetString("adaptor.fullListingSchedule"),
		AdaptorIncrementalPollPeriod:   v.GetDuration("adaptor.incrementalPollPeriodMillis") * time.Millisecond,
		LogLevel:                       v.GetString("log.level"),
		LogFormat:                      v.GetString("log.format"),
	}

	validator := NewValidator()
	validator.RequireString("gsa.hostname", cfg.GSAHostname)
	validator.RequirePositiveInt("server.port", cfg.ServerPort)
	if err := validator.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validator accumulates configuration validation errors so Load can report
// every problem at once rather than failing on the first.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString validates that a string field is not empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequirePositiveInt validates that an integer field is positive.
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options.
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString returns all validation errors as a single string.
func (v *Validator) ErrorString() string {
	return strings.Join(v.errors, "; ")
}

// Validate runs validation and returns an error if invalid.
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("config: validation failed: %s", v.ErrorString())
	}
	return nil
}
