package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the dashboard server.
type Config struct {
	HTTPPort       int
	DataDir        string
	FormsDir       string
	WatchDir       string
	LogLevel       string
	AdminUsername  string
	AdminPassword  string
	JWTSecret      string
	AllowedOrigins []string
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/daqserver).
func Load() Config {
	var origins []string
	if raw := viper.GetString("allowed_origins"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return Config{
		HTTPPort:       viper.GetInt("http_port"),
		DataDir:        viper.GetString("data_dir"),
		FormsDir:       viper.GetString("forms_dir"),
		WatchDir:       viper.GetString("watch_dir"),
		LogLevel:       viper.GetString("log_level"),
		AdminUsername:  viper.GetString("admin_username"),
		AdminPassword:  viper.GetString("admin_password"),
		JWTSecret:      viper.GetString("jwt_secret"),
		AllowedOrigins: origins,
	}
}
