package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration settings for the faultmap service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server (health and metrics).
// - APIAddr: The listen address for the dashboard API server.
// - ProviderType: The type of geocoding provider to use (nominatim, google, postcodesio).
// - APIKey: The API key for the geocoding provider (required for Google).
// - Workers: The number of concurrent workers for geocoding a batch.
// - CountrySuffix: Country qualifier appended to geocode queries.
// - GeocodeTimeout: Request timeout for a single geocode lookup.
// - NegativeTTL: How long unresolved postcodes stay cached; zero means forever.
// - Fetch: Upstream fault API settings.
// - Database: Optional PostgreSQL settings for the persistent geocode cache.
type Config struct {
	Env            string
	Port           int
	APIAddr        string
	ProviderType   string
	APIKey         string
	Workers        int
	CountrySuffix  string
	GeocodeTimeout time.Duration
	NegativeTTL    time.Duration
	Fetch          FetchConfig
	Database       PostgresConfig
}

// FetchConfig holds the upstream fault API settings.
type FetchConfig struct {
	BaseURL string // BaseURL is the records search endpoint.
	Dataset string // Dataset is the opendatasoft dataset identifier.
	Rows    int    // Rows is the row limit per fetch.
}

// PostgresConfig holds the configuration details for connecting to a PostgreSQL database.
// An empty Host disables the persistent cache and the service runs memory-only.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled reports whether a database connection is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// MustLoad loads the configuration from environment variables, panicking on
// malformed values.
func MustLoad() *Config {
	return mustLoadFrom("")
}

// MustLoadFromFile loads the configuration, reading defaults from the given
// yaml file before applying environment overrides.
func MustLoadFromFile(path string) *Config {
	return mustLoadFrom(path)
}

func mustLoadFrom(path string) *Config {
	vpr := viper.New()

	vpr.SetDefault("env", "production")
	vpr.SetDefault("health_port", 8080)
	vpr.SetDefault("api_addr", ":8090")
	vpr.SetDefault("provider_type", "nominatim")
	vpr.SetDefault("provider_key", "")
	vpr.SetDefault("workers", 1)
	vpr.SetDefault("country_suffix", "UK")
	vpr.SetDefault("geocode_timeout", "10s")
	vpr.SetDefault("geocode_negative_ttl", "0s")
	vpr.SetDefault("fetch_url", "https://ukpowernetworks.opendatasoft.com/api/records/1.0/search/")
	vpr.SetDefault("fetch_dataset", "ukpn-live-faults")
	vpr.SetDefault("fetch_rows", 20)
	vpr.SetDefault("db_host", "")
	vpr.SetDefault("db_port", "5432")
	vpr.SetDefault("db_username", "")
	vpr.SetDefault("db_password", "")
	vpr.SetDefault("db_name", "")

	vpr.SetEnvPrefix("FAULTMAP")
	vpr.AutomaticEnv()

	if path != "" {
		vpr.SetConfigFile(path)
		vpr.SetConfigType("yaml")
		if err := vpr.ReadInConfig(); err != nil {
			panic(fmt.Sprintf("failed to read config file: %v", err))
		}
	}

	geocodeTimeout, err := time.ParseDuration(vpr.GetString("geocode_timeout"))
	if err != nil {
		panic("failed to parse geocode timeout from configuration")
	}

	negativeTTL, err := time.ParseDuration(vpr.GetString("geocode_negative_ttl"))
	if err != nil {
		panic("failed to parse geocode negative TTL from configuration")
	}

	workers := vpr.GetInt("workers")
	if workers < 1 {
		panic("workers must be a positive integer")
	}

	rows := vpr.GetInt("fetch_rows")
	if rows < 1 {
		panic("fetch rows must be a positive integer")
	}

	return &Config{
		Env:            vpr.GetString("env"),
		Port:           vpr.GetInt("health_port"),
		APIAddr:        vpr.GetString("api_addr"),
		ProviderType:   vpr.GetString("provider_type"),
		APIKey:         vpr.GetString("provider_key"),
		Workers:        workers,
		CountrySuffix:  vpr.GetString("country_suffix"),
		GeocodeTimeout: geocodeTimeout,
		NegativeTTL:    negativeTTL,
		Fetch: FetchConfig{
			BaseURL: vpr.GetString("fetch_url"),
			Dataset: vpr.GetString("fetch_dataset"),
			Rows:    rows,
		},
		Database: PostgresConfig{
			Host:     vpr.GetString("db_host"),
			Port:     vpr.GetString("db_port"),
			User:     vpr.GetString("db_username"),
			Password: vpr.GetString("db_password"),
			Name:     vpr.GetString("db_name"),
		},
	}
}
