// Package config implements the ambient configuration stack (spec.md §9
// supplements): a viper.Viper-backed Configuration, loaded in the same
// two-phase SetupViper/New(v) idiom the original prebid-server main uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration is everything the reactor pipeline and HTTP transport need
// at runtime, sourced from SFE_-prefixed environment variables, a config
// file, or both.
type Configuration struct {
	Host string
	Port int

	SellerOriginDomain string
	EnableEncryption   bool

	GetBidsTimeoutMS        int
	ScoringSignalsTimeoutMS int
	ScoreAdsTimeoutMS       int

	EnableSellerFrontendBenchmarking bool

	// KnownBuyers is loaded from the known_buyers key. Nothing in this
	// module reads it: GetBids dispatch is not restricted to these origins.
	KnownBuyers []string
}

// GetBidsTimeout is GetBidsTimeoutMS as a time.Duration.
func (c *Configuration) GetBidsTimeout() time.Duration {
	return time.Duration(c.GetBidsTimeoutMS) * time.Millisecond
}

// ScoringSignalsTimeout is ScoringSignalsTimeoutMS as a time.Duration.
func (c *Configuration) ScoringSignalsTimeout() time.Duration {
	return time.Duration(c.ScoringSignalsTimeoutMS) * time.Millisecond
}

// ScoreAdsTimeout is ScoreAdsTimeoutMS as a time.Duration.
func (c *Configuration) ScoreAdsTimeout() time.Duration {
	return time.Duration(c.ScoreAdsTimeoutMS) * time.Millisecond
}

// SetupViper registers every configuration key's default value and binds
// environment variable lookups, mirroring config.SetupViper(v, "pbs", ...)
// from the original main. service namespaces the environment prefix (e.g.
// "sfe" binds SFE_HOST, SFE_PORT, ...).
func SetupViper(v *viper.Viper, service string) {
	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("seller_origin_domain", "")
	v.SetDefault("enable_encryption", true)
	v.SetDefault("get_bids_timeout_ms", 250)
	v.SetDefault("scoring_signals_timeout_ms", 100)
	v.SetDefault("score_ads_timeout_ms", 250)
	v.SetDefault("enable_seller_frontend_benchmarking", false)
	v.SetDefault("known_buyers", []string{})

	v.SetConfigName(service)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/" + service)
}

// New validates and materializes a Configuration from v, the second half
// of the SetupViper/New(v) idiom.
func New(v *viper.Viper) (*Configuration, error) {
	_ = v.ReadInConfig() // absent config file is not fatal; env + defaults carry the service

	cfg := &Configuration{
		Host:                              v.GetString("host"),
		Port:                              v.GetInt("port"),
		SellerOriginDomain:                v.GetString("seller_origin_domain"),
		EnableEncryption:                  v.GetBool("enable_encryption"),
		GetBidsTimeoutMS:                  v.GetInt("get_bids_timeout_ms"),
		ScoringSignalsTimeoutMS:           v.GetInt("scoring_signals_timeout_ms"),
		ScoreAdsTimeoutMS:                 v.GetInt("score_ads_timeout_ms"),
		EnableSellerFrontendBenchmarking:  v.GetBool("enable_seller_frontend_benchmarking"),
		KnownBuyers:                       v.GetStringSlice("known_buyers"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.GetBidsTimeoutMS <= 0 {
		return fmt.Errorf("config: get_bids_timeout_ms must be positive, got %d", c.GetBidsTimeoutMS)
	}
	if c.ScoreAdsTimeoutMS <= 0 {
		return fmt.Errorf("config: score_ads_timeout_ms must be positive, got %d", c.ScoreAdsTimeoutMS)
	}
	return nil
}
