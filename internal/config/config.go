package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreSurreal = "surreal"
	StoreBadger  = "badger"
)

// Config holds all configuration values.
type Config struct {
	// Catalog
	CKANURL     string
	CKANToken   string
	SiteUser    string
	DatasetType string

	// Harvest record store
	Store     string
	BadgerDir string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Sources
	SourcesFile string

	// Import
	Concurrency         int
	FingerprintAttempts int
	FingerprintDelay    time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Server
	ServerPort string
	ServerURL  string
}

// Load reads configuration from HARVEST_* environment variables.
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.AutomaticEnv()

	v.SetDefault("ckan_url", "http://localhost:5000")
	v.SetDefault("site_user", "harvest")
	v.SetDefault("dataset_type", "dataset")

	v.SetDefault("store", StoreSurreal)
	v.SetDefault("badger_dir", "/tmp/stadtzhharvest/store")

	v.SetDefault("surrealdb_url", "ws://localhost:8000/rpc")
	v.SetDefault("surrealdb_namespace", "harvest")
	v.SetDefault("surrealdb_database", "stadtzh")
	v.SetDefault("surrealdb_user", "root")
	v.SetDefault("surrealdb_pass", "root")
	v.SetDefault("surrealdb_auth_level", "root")

	v.SetDefault("sources_file", "sources.yaml")

	v.SetDefault("concurrency", 1)
	v.SetDefault("fingerprint_attempts", 10)
	v.SetDefault("fingerprint_delay", 200*time.Millisecond)

	v.SetDefault("log_file", "/tmp/stadtzhharvest.log")
	v.SetDefault("log_level", "INFO")

	v.SetDefault("server_port", "8484")
	v.SetDefault("server_url", "http://localhost:8484")

	cfg := Config{
		CKANURL:     v.GetString("ckan_url"),
		CKANToken:   v.GetString("ckan_token"),
		SiteUser:    v.GetString("site_user"),
		DatasetType: v.GetString("dataset_type"),

		Store:     strings.ToLower(v.GetString("store")),
		BadgerDir: v.GetString("badger_dir"),

		SurrealDBURL:       v.GetString("surrealdb_url"),
		SurrealDBNamespace: v.GetString("surrealdb_namespace"),
		SurrealDBDatabase:  v.GetString("surrealdb_database"),
		SurrealDBUser:      v.GetString("surrealdb_user"),
		SurrealDBPass:      v.GetString("surrealdb_pass"),
		SurrealDBAuthLevel: v.GetString("surrealdb_auth_level"),

		SourcesFile: v.GetString("sources_file"),

		Concurrency:         v.GetInt("concurrency"),
		FingerprintAttempts: v.GetInt("fingerprint_attempts"),
		FingerprintDelay:    v.GetDuration("fingerprint_delay"),

		LogFile:  v.GetString("log_file"),
		LogLevel: parseLogLevel(v.GetString("log_level")),

		ServerPort: v.GetString("server_port"),
		ServerURL:  v.GetString("server_url"),
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
