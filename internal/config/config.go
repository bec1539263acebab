// Package config wraps the viper configuration singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowmesh/rowmesh/internal/debug"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at startup.
//
// Precedence: env vars (ROWMESH_ prefix) > rowmesh.yaml > defaults.
// rowmesh.yaml is discovered by walking up from the working directory,
// so commands work from subdirectories of a project.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, "rowmesh.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "rowmesh", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("ROWMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "rowmesh.db")
	v.SetDefault("json", false)
	v.SetDefault("policy", "lexicographic-min")
	v.SetDefault("gc.keep", 10)
	v.SetDefault("lock-timeout", "30s")
	v.SetDefault("coord.listen", "127.0.0.1:9400")
	v.SetDefault("coord.log", "")
	v.SetDefault("coord.samples", 100)
	v.SetDefault("coord.dial-timeout", "5s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no rowmesh.yaml found; using defaults and environment variables")
	}
	return nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}
