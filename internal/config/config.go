// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// ListenAddr defines the bridge server's listening address (ip:port).
	ListenAddr string

	// BackendURL is the base URL of the FormSync backend API.
	BackendURL string

	// ExtensionKey is the pre-shared key sent as X-Extension-Key on
	// every backend call.
	ExtensionKey string

	// UserID scopes template fetches to a single user.
	UserID int64

	// CachePath is the file used for the persisted template cache.
	CachePath string

	// LogLevel selects the zap log level.
	LogLevel string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.ListenAddr, "a", "localhost:8090", "run bridge on ip:port")
	flag.StringVar(&options.BackendURL, "b", "https://backend-production-0914.up.railway.app", "backend base URL")
	flag.StringVar(&options.ExtensionKey, "k", "ext_2024_preenche_rapido_secure_key_987654321", "extension API key")
	flag.Int64Var(&options.UserID, "u", 6, "user id for template fetches")
	flag.StringVar(&options.CachePath, "cache", "templates_cache.json", "path to template cache file")
	flag.StringVar(&options.LogLevel, "l", "info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	// Optional .env file; absence is not an error.
	_ = godotenv.Load()

	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if addr := os.Getenv("BRIDGE_ADDRESS"); addr != "" {
		options.ListenAddr = addr
	}
	if backend := os.Getenv("BACKEND_URL"); backend != "" {
		options.BackendURL = backend
	}
	if key := os.Getenv("EXTENSION_KEY"); key != "" {
		options.ExtensionKey = key
	}

	return options
}
