package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/medcert/internal/flagx"
	"github.com/dmitrijs2005/medcert/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "4h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr        string         `json:"endpoint_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	RedisURL            string         `json:"redis_url"`
	SecretKey           string         `json:"secret_key"`
	TokenTTL            timex.Duration `json:"token_ttl"`
	SessionTTL          timex.Duration `json:"session_ttl"`
	AuthRateLimit       int            `json:"auth_rate_limit"`
	AuthRateWindow      timex.Duration `json:"auth_rate_window"`
	IcdRateLimit        int            `json:"icd_rate_limit"`
	IcdRateWindow       timex.Duration `json:"icd_rate_window"`
	WhoBaseURL          string         `json:"who_base_url"`
	WhoTokenURL         string         `json:"who_token_url"`
	WhoClientID         string         `json:"who_client_id"`
	WhoClientSecret     string         `json:"who_client_secret"`
	WhoReleases         []string       `json:"who_releases"`
	WhoPreferredRelease string         `json:"who_preferred_release"`
	DirectoryBaseURL    string         `json:"directory_base_url"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. Only fields present in the file
// (non-zero after unmarshalling) overwrite the current Config values, so the
// file can be partial. If the file cannot be read or contains invalid JSON,
// the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v timex.Duration) {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenTTL, c.TokenTTL)
	setDuration(&config.SessionTTL, c.SessionTTL)
	if c.AuthRateLimit != 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	setDuration(&config.AuthRateWindow, c.AuthRateWindow)
	if c.IcdRateLimit != 0 {
		config.IcdRateLimit = c.IcdRateLimit
	}
	setDuration(&config.IcdRateWindow, c.IcdRateWindow)
	setString(&config.WhoBaseURL, c.WhoBaseURL)
	setString(&config.WhoTokenURL, c.WhoTokenURL)
	setString(&config.WhoClientID, c.WhoClientID)
	setString(&config.WhoClientSecret, c.WhoClientSecret)
	if len(c.WhoReleases) > 0 {
		config.WhoReleases = c.WhoReleases
	}
	setString(&config.WhoPreferredRelease, c.WhoPreferredRelease)
	setString(&config.DirectoryBaseURL, c.DirectoryBaseURL)
}
