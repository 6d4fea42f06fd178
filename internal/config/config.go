// Copyright 2026 The StratumGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds process-wide gateway configuration. Logging
// formatters and the HTTP routing shell load their own configuration
// elsewhere; this package only covers settings the core components read
// directly. Layering priority: environment variables > config file >
// defaults (the core has no CLI flags of its own to sit above them).
package config

import (
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/stratumgate/gateway/internal/log"
	"go.uber.org/zap"
)

var (
	global     *Config
	globalOnce sync.Once
)

// Config is the process-wide configuration snapshot.
type Config struct {
	// ProxyURL is an optional HTTP(S) proxy used for all outbound upstream
	// traffic.
	ProxyURL string `mapstructure:"proxy_url"`

	// MachineIDSeed seeds the SHA-256 hashed machine id sent in the Kiro
	// upstream's user-agent header.
	MachineIDSeed string `mapstructure:"machine_id_seed"`

	// CredentialRefreshSkew is how far ahead of a credential's stored expiry
	// the pool treats the token as already expired, so a refresh happens
	// before the upstream would reject it.
	CredentialRefreshSkew time.Duration `mapstructure:"credential_refresh_skew"`

	// CredentialErrorThreshold is the error count at which a credential is
	// quarantined.
	CredentialErrorThreshold int `mapstructure:"credential_error_threshold"`

	// KiroTokenURL, KiroClientID, and KiroClientSecret configure the OAuth2
	// refresh-token grant for Kiro credentials. The token URL defaults to
	// the provider's public OIDC token endpoint; client id/secret come from
	// the operator's OAuth registration.
	KiroTokenURL     string `mapstructure:"kiro_token_url"`
	KiroClientID     string `mapstructure:"kiro_client_id"`
	KiroClientSecret string `mapstructure:"kiro_client_secret"`

	// WarpTokenURL, WarpClientID, and WarpClientSecret are the same knobs
	// for Warp credentials.
	WarpTokenURL     string `mapstructure:"warp_token_url"`
	WarpClientID     string `mapstructure:"warp_client_id"`
	WarpClientSecret string `mapstructure:"warp_client_secret"`

	// SandboxDockerHost is the Docker daemon endpoint for the tool-execution
	// sandbox. Empty falls back to DOCKER_HOST, then the default unix
	// socket.
	SandboxDockerHost string `mapstructure:"sandbox_docker_host"`

	// SandboxImage is the container image Warp tool commands execute in.
	// Empty disables the Docker sandbox entirely and tool commands run
	// directly on the host.
	SandboxImage string `mapstructure:"sandbox_image"`

	// DefaultConcurrentLimit is the ConcurrentLimit given to the bootstrap
	// API key; keys created any other way keep the limit they are created
	// with.
	DefaultConcurrentLimit int `mapstructure:"default_concurrent_limit"`

	// BootstrapAPIKey, when set, is provisioned as an active API key on
	// startup so a fresh deployment can serve requests before any key
	// management has happened.
	BootstrapAPIKey string `mapstructure:"bootstrap_api_key"`

	// SQLitePath is the credential store's persistent backing file. Empty
	// keeps the in-memory store (cmd/gatewayd's default).
	SQLitePath string `mapstructure:"sqlite_path"`

	// Addr is the HTTP listen address for the routing shell.
	Addr string `mapstructure:"addr"`
}

// Get returns the global configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		global = load()
	})
	return global
}

// Set overrides the global configuration.
func Set(cfg *Config) {
	global = cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy_url", "")
	v.SetDefault("machine_id_seed", "")
	v.SetDefault("credential_refresh_skew", 30*time.Second)
	v.SetDefault("credential_error_threshold", 5)
	v.SetDefault("kiro_token_url", "https://oidc.us-east-1.amazonaws.com/token")
	v.SetDefault("kiro_client_id", "")
	v.SetDefault("kiro_client_secret", "")
	v.SetDefault("warp_token_url", "https://app.warp.dev/oauth/token")
	v.SetDefault("warp_client_id", "")
	v.SetDefault("warp_client_secret", "")
	v.SetDefault("sandbox_docker_host", "")
	v.SetDefault("sandbox_image", "alpine:3.20")
	v.SetDefault("default_concurrent_limit", 0)
	v.SetDefault("bootstrap_api_key", "")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("addr", ":8080")
}

// load applies defaults, then an optional config file, then environment
// overrides via AutomaticEnv + SetEnvPrefix. GATEWAY_CONFIG_FILE pins an
// exact file; otherwise gateway.yaml is searched for in the current
// directory and /etc/stratumgate. A missing config file is not an error;
// env vars and defaults carry the process.
func load() *Config {
	v := viper.New()
	setDefaults(v)

	if cfgFile := os.Getenv("GATEWAY_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stratumgate/")
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("failed to read gateway config file", zap.Error(err))
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Error("failed to unmarshal gateway config, falling back to defaults", zap.Error(err))
		setDefaults(v)
		cfg = &Config{
			CredentialRefreshSkew:    30 * time.Second,
			CredentialErrorThreshold: 5,
			Addr:                     ":8080",
		}
	}

	if cfg.MachineIDSeed == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.MachineIDSeed = h
		} else {
			cfg.MachineIDSeed = "stratumgate"
		}
	}
	return cfg
}
