// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads Dolphie's configuration: the `[client]`/`[dolphie]`
// INI file, environment overrides, and the hostgroup/credential-profile YAML
// file, following the same three-tier precedence order (file, then env, then
// CLI flags applied by the caller) as the teacher's
// internal/common/config.LoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/logging"
)

// Config is the top-level settings a Tab Runtime and cmd/dolphie need for a
// single endpoint, decoded from the `[client]`/`[dolphie]` INI sections.
type Config struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"required_without=Socket"`
	Socket   string `mapstructure:"socket" validate:"required_without=Port"`

	TLSMode string `mapstructure:"tls_mode" validate:"omitempty,oneof=off required verify-ca verify-identity"`
	TLSCA   string `mapstructure:"tls_ca"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`

	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"min=1000000000"` // >= 1s
	HeartbeatTable  string        `mapstructure:"heartbeat_table" validate:"omitempty,heartbeat_table"`

	HostgroupFile string `mapstructure:"hostgroup_file"`
	HostCacheFile string `mapstructure:"host_cache_file"`

	ReplayFile string `mapstructure:"replay_file"`
	ReplayMode bool    `mapstructure:"replay_mode"`

	Logging logging.Config `mapstructure:"logging"`
}

// ToEndpoint builds the immutable connection identity the Tab Runtime
// operates on, named CredentialName so the event stream's connection-source
// tagging can attribute a tab back to its originating profile.
func (c Config) ToEndpoint(credentialName, displayTitle string) endpoint.Endpoint {
	return endpoint.Endpoint{
		Host:           c.Host,
		Port:           c.Port,
		Socket:         c.Socket,
		User:           c.User,
		Password:       c.Password,
		TLSMode:        endpoint.TLSMode(c.TLSMode),
		TLSCA:          c.TLSCA,
		TLSCert:        c.TLSCert,
		TLSKey:         c.TLSKey,
		CredentialName: credentialName,
		DisplayTitle:   displayTitle,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("heartbeat_table", validateHeartbeatTable)
	return v
}

// validateHeartbeatTable enforces the db.table syntax pt-heartbeat-style
// tables are configured with, used for lag calculation against a
// heartbeat table.
func validateHeartbeatTable(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return true
	}
	parts := strings.SplitN(v, ".", 2)
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// Load reads cfgFile (an INI file with `[client]` and `[dolphie]` sections)
// via viper, applies `DOLPHIE_`-prefixed environment overrides, and
// validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.SetConfigType("ini")

	v.SetEnvPrefix("DOLPHIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envKeys := bindEnvOverrides(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}

	merged := map[string]interface{}{}
	for _, section := range []string{"client", "dolphie"} {
		for k, val := range v.GetStringMap(section) {
			merged[k] = val
		}
	}
	// The section maps only carry file values; env-bound keys are layered on
	// top so a set DOLPHIE_* variable wins over the file.
	for _, key := range envKeys {
		if v.IsSet(key) {
			merged[key] = v.Get(key)
		}
	}
	sv := viper.New()
	if err := sv.MergeConfigMap(merged); err != nil {
		return nil, fmt.Errorf("merging config sections: %w", err)
	}

	var cfg Config
	if err := sv.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Second
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// bindEnvOverrides wires the documented DOLPHIE_* environment variables so
// they apply even when a field is absent from the file entirely (viper's
// AutomaticEnv alone only overrides keys already present in the config map).
// It returns the bound keys.
func bindEnvOverrides(v *viper.Viper) []string {
	binds := map[string]string{
		"user":             "DOLPHIE_USER",
		"password":         "DOLPHIE_PASSWORD",
		"host":             "DOLPHIE_HOST",
		"port":             "DOLPHIE_PORT",
		"socket":           "DOLPHIE_SOCKET",
		"tls_mode":         "DOLPHIE_TLS_MODE",
		"refresh_interval": "DOLPHIE_REFRESH_INTERVAL",
	}
	keys := make([]string, 0, len(binds))
	for key, env := range binds {
		_ = v.BindEnv(key, env)
		keys = append(keys, key)
	}
	return keys
}
