// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

// Config is the unmarshalled application configuration.
type Config struct {
	Version string `toml:"-" mapstructure:"-"`

	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	PprofEnabled  bool   `toml:"pprofEnabled" mapstructure:"pprofEnabled"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	// Indexing site
	SiteURL                  string `toml:"siteUrl" mapstructure:"siteUrl"`
	SiteCheckIntervalMinutes int    `toml:"siteCheckIntervalMinutes" mapstructure:"siteCheckIntervalMinutes"`
	SiteRefreshBeforeSearch  bool   `toml:"siteRefreshBeforeSearch" mapstructure:"siteRefreshBeforeSearch"`
	RequestTimeoutSeconds    int    `toml:"requestTimeoutSeconds" mapstructure:"requestTimeoutSeconds"`

	// AllDebrid
	AllDebridAPIKey         string `toml:"alldebridApiKey" mapstructure:"alldebridApiKey"`
	AllDebridBaseURL        string `toml:"alldebridBaseUrl" mapstructure:"alldebridBaseUrl"`
	UnlockRetryDelaySeconds int    `toml:"unlockRetryDelaySeconds" mapstructure:"unlockRetryDelaySeconds"`
	UnlockMaxRetries        int    `toml:"unlockMaxRetries" mapstructure:"unlockMaxRetries"`
}

// RequestTimeout returns the per-request timeout, falling back to 30s.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SiteCheckInterval returns zero when the background check is disabled.
func (c *Config) SiteCheckInterval() time.Duration {
	if c.SiteCheckIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SiteCheckIntervalMinutes) * time.Minute
}

func (c *Config) UnlockRetryDelay() time.Duration {
	if c.UnlockRetryDelaySeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.UnlockRetryDelaySeconds) * time.Second
}
