// Package config provides YAML-based configuration loading for Bellhop.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Bellhop configuration, loaded from bellhop.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Hotels     []HotelConfig    `yaml:"hotels"`
}

// DatabaseConfig selects the SQL backend. DSN wins over the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	TriggerToken string   `yaml:"trigger_token"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// DispatchConfig tunes the heartbeat.
type DispatchConfig struct {
	BatchSize            int    `yaml:"batch_size"`
	MaxRetries           int    `yaml:"max_retries"`
	AssignmentTimeoutSec int    `yaml:"assignment_timeout_sec"`
	SurgeThreshold       int    `yaml:"surge_threshold"`
	ClaimLeaseSec        int    `yaml:"claim_lease_sec"`
	HeartbeatSchedule    string `yaml:"heartbeat_schedule"`
	EscalationSchedule   string `yaml:"escalation_schedule"`
	EscalateAfterSec     int    `yaml:"escalate_after_sec"`
}

// AssignmentTimeout returns the staff response window as a duration.
func (d DispatchConfig) AssignmentTimeout() time.Duration {
	return time.Duration(d.AssignmentTimeoutSec) * time.Second
}

// ClaimLease returns how long a heartbeat claim holds a task.
func (d DispatchConfig) ClaimLease() time.Duration {
	return time.Duration(d.ClaimLeaseSec) * time.Second
}

// EscalateAfter returns the age at which an active alert is escalated.
func (d DispatchConfig) EscalateAfter() time.Duration {
	return time.Duration(d.EscalateAfterSec) * time.Second
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	PhoneID       string  `yaml:"phone_id"`
	AccessToken   string  `yaml:"access_token"`
	VerifyToken   string  `yaml:"verify_token"`
	APIVersion    string  `yaml:"api_version"`
	BaseURL       string  `yaml:"base_url"`
	Language      string  `yaml:"language"`
	AdminLanguage string  `yaml:"admin_language"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Enabled reports whether outbound WhatsApp delivery is configured.
func (w WhatsAppConfig) Enabled() bool {
	return w.PhoneID != "" && w.AccessToken != ""
}

// ClassifierConfig holds the Gemini settings.
type ClassifierConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AlertsConfig holds the optional admin alert channels.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Email   EmailConfig   `yaml:"email"`
	SMS     SMSConfig     `yaml:"sms"`
}

// SlackConfig configures the Slack alert channel.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig configures the Discord alert channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// EmailConfig configures the SES e-mail alert channel.
type EmailConfig struct {
	From   string `yaml:"from"`
	Region string `yaml:"region"`
}

// SMSConfig configures the Twilio SMS channel used for escalations.
type SMSConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

// Enabled reports whether every Twilio setting is present.
func (s SMSConfig) Enabled() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.From != ""
}

// HotelConfig seeds the staff roster and admins of one hotel.
type HotelConfig struct {
	ID     string        `yaml:"id"`
	Staff  []StaffConfig `yaml:"staff"`
	Admins []AdminConfig `yaml:"admins"`
}

// StaffConfig is one seeded staff member.
type StaffConfig struct {
	Name    string `yaml:"name"`
	Contact string `yaml:"contact"`
	Role    string `yaml:"role"`
}

// AdminConfig is one seeded hotel admin.
type AdminConfig struct {
	Name     string `yaml:"name"`
	WhatsApp string `yaml:"whatsapp"`
	Email    string `yaml:"email"`
	Primary  bool   `yaml:"primary"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and unmarshals YAML bytes into a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "bellhop"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	d := &c.Dispatch
	if d.BatchSize == 0 {
		d.BatchSize = 10
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = 3
	}
	if d.AssignmentTimeoutSec == 0 {
		d.AssignmentTimeoutSec = 120
	}
	if d.SurgeThreshold == 0 {
		d.SurgeThreshold = 3
	}
	if d.ClaimLeaseSec == 0 {
		d.ClaimLeaseSec = 300
	}
	if d.HeartbeatSchedule == "" {
		d.HeartbeatSchedule = "@every 30s"
	}
	if d.EscalationSchedule == "" {
		d.EscalationSchedule = "@every 15m"
	}
	if d.EscalateAfterSec == 0 {
		d.EscalateAfterSec = 4 * 60 * 60
	}

	w := &c.WhatsApp
	if w.APIVersion == "" {
		w.APIVersion = "v17.0"
	}
	if w.BaseURL == "" {
		w.BaseURL = "https://graph.facebook.com"
	}
	if w.Language == "" {
		w.Language = "ar"
	}
	if w.AdminLanguage == "" {
		w.AdminLanguage = "en_US"
	}
	if w.RatePerSecond == 0 {
		w.RatePerSecond = 20
	}

	if c.Classifier.Model == "" {
		c.Classifier.Model = "gemini-pro"
	}
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Alerts.Email.Region == "" {
		c.Alerts.Email.Region = "us-east-1"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql, postgres or sqlite", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required for sqlite")
	}

	d := c.Dispatch
	if d.BatchSize < 0 {
		errs = append(errs, "dispatch.batch_size must be positive")
	}
	if d.MaxRetries < 0 {
		errs = append(errs, "dispatch.max_retries must be positive")
	}
	if d.AssignmentTimeoutSec < 0 {
		errs = append(errs, "dispatch.assignment_timeout_sec must be positive")
	}
	if err := ValidateSchedule(d.HeartbeatSchedule); err != nil {
		errs = append(errs, "dispatch.heartbeat_schedule: "+err.Error())
	}
	if err := ValidateSchedule(d.EscalationSchedule); err != nil {
		errs = append(errs, "dispatch.escalation_schedule: "+err.Error())
	}

	if (c.Alerts.Slack.BotToken == "") != (c.Alerts.Slack.Channel == "") {
		errs = append(errs, "alerts.slack needs both bot_token and channel")
	}
	if (c.Alerts.Discord.BotToken == "") != (c.Alerts.Discord.ChannelID == "") {
		errs = append(errs, "alerts.discord needs both bot_token and channel_id")
	}

	if sms := c.Alerts.SMS; !sms.Enabled() && (sms.AccountSID != "" || sms.AuthToken != "" || sms.From != "") {
		errs = append(errs, "alerts.sms needs account_sid, auth_token and from")
	}

	seen := make(map[string]bool)
	for i, h := range c.Hotels {
		if h.ID == "" {
			errs = append(errs, fmt.Sprintf("hotels[%d].id is required", i))
			continue
		}
		if seen[h.ID] {
			errs = append(errs, fmt.Sprintf("hotels[%d].id %q is duplicated", i, h.ID))
		}
		seen[h.ID] = true
		for j, s := range h.Staff {
			if s.Name == "" || s.Contact == "" {
				errs = append(errs, fmt.Sprintf("hotels[%d].staff[%d] needs name and contact", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a 5-field cron expression or @descriptor.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}
