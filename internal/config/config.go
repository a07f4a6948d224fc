package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service. Secrets are mandatory;
// a missing one aborts startup.
type Config struct {
	Port        string
	ServiceName string

	MongoURI string
	DBName   string
	RedisURL string

	WebhookSecret     string
	DPR1WebhookSecret string
	DPR2WebhookSecret string
	CMPWebhookSecret  string

	CMSAckURL          string
	VerificationAckURL string
	ErasureAckURL      string

	ReconcileInterval  time.Duration
	AckFanout          int
	RateLimitPerSecond int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVICE_NAME", "consent-event-exchange")
	v.SetDefault("DB_NAME", "consent_exchange")
	v.SetDefault("CMS_ACK_URL", "http://127.0.0.1:8001/api/v1/consent-artifact/consent-ack")
	v.SetDefault("VERIFICATION_ACK_URL", "http://127.0.0.1:8001/api/v1/n/dp-verification-ack")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("ACK_FANOUT", 1)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 0)

	cfg := &Config{
		Port:        v.GetString("PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),

		MongoURI: v.GetString("MONGO_URI"),
		DBName:   v.GetString("DB_NAME"),
		RedisURL: v.GetString("REDIS_URL"),

		WebhookSecret:     v.GetString("WEBHOOK_SECRET"),
		DPR1WebhookSecret: v.GetString("DPR1_WEBHOOK_SECRET"),
		DPR2WebhookSecret: v.GetString("DPR2_WEBHOOK_SECRET"),
		CMPWebhookSecret:  v.GetString("CMP_WEBHOOK_SECRET"),

		CMSAckURL:          v.GetString("CMS_ACK_URL"),
		VerificationAckURL: v.GetString("VERIFICATION_ACK_URL"),
		ErasureAckURL:      v.GetString("ERASURE_ACK_URL"),

		ReconcileInterval:  v.GetDuration("RECONCILE_INTERVAL"),
		AckFanout:          v.GetInt("ACK_FANOUT"),
		RateLimitPerSecond: v.GetInt("RATE_LIMIT_PER_SECOND"),
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
	for name, val := range map[string]string{
		"WEBHOOK_SECRET":      cfg.WebhookSecret,
		"DPR1_WEBHOOK_SECRET": cfg.DPR1WebhookSecret,
		"DPR2_WEBHOOK_SECRET": cfg.DPR2WebhookSecret,
		"CMP_WEBHOOK_SECRET":  cfg.CMPWebhookSecret,
	} {
		if val == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	// The erasure peer defaults to the consent-ack endpoint; the CMP
	// accepts both shapes there.
	if cfg.ErasureAckURL == "" {
		cfg.ErasureAckURL = cfg.CMSAckURL
	}

	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	if cfg.AckFanout < 1 {
		cfg.AckFanout = 1
	}

	return cfg, nil
}

// Secrets returns the keyring of named ingress verification keys plus
// the egress signing key.
func (c *Config) Secrets() map[string]string {
	return map[string]string{
		"WEBHOOK_SECRET":      c.WebhookSecret,
		"DPR1_WEBHOOK_SECRET": c.DPR1WebhookSecret,
		"DPR2_WEBHOOK_SECRET": c.DPR2WebhookSecret,
		"CMP_WEBHOOK_SECRET":  c.CMPWebhookSecret,
	}
}

// AckURL maps an ACK kind name to its configured peer target.
func (c *Config) AckURL(kind string) string {
	switch kind {
	case "verification-ack":
		return c.VerificationAckURL
	case "data-erasure-ack":
		return c.ErasureAckURL
	default:
		return c.CMSAckURL
	}
}
