package awmkit

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the process-wide configuration this module's constructors
// read from, assembled the way the teacher's own Config structs are:
// a plain struct with sane zero-value-safe defaults, overridable by
// environment variables and, optionally, a JSON file layered on top.
type Config struct {
	// ExecPath is the external watermark binary invoked by the
	// orchestrator (spec.md §6 "external binary").
	ExecPath string `json:"exec_path"`

	// Strength is the default watermark strength; Validate rejects values
	// outside [1,30].
	Strength int `json:"strength"`

	// KeyBackend selects the key store's persistence backend: "mem",
	// "file", or "bolt".
	KeyBackend string `json:"key_backend"`
	// KeyFileDir is the directory used by the "file" backend.
	KeyFileDir string `json:"key_file_dir"`
	// BoltPath is the database file used by the "bolt" backend.
	BoltPath string `json:"bolt_path"`

	// EvidenceDSN is the modernc.org/sqlite data source for the
	// evidence recorder.
	EvidenceDSN string `json:"evidence_dsn"`

	// Language is the UI language override (langpref.go); empty means
	// "follow system locale".
	Language string `json:"language"`

	// CloneThresholds overrides clone-check's classification constants.
	CloneThresholds CloneThresholds `json:"clone_thresholds"`
}

// DefaultConfig returns the module's baseline configuration before any
// environment or file overrides are applied.
func DefaultConfig() Config {
	return Config{
		ExecPath:        "audiowmark",
		Strength:        10,
		KeyBackend:      "mem",
		KeyFileDir:      "",
		BoltPath:        "",
		EvidenceDSN:     "file::memory:?cache=shared",
		Language:        "",
		CloneThresholds: DefaultCloneThresholds,
	}
}

// envPrefix namespaces every environment variable this module reads, the
// way the teacher's own deployment tooling namespaces its own env vars.
const envPrefix = "AWMKIT_"

// LoadConfig builds a Config by layering environment variables over
// DefaultConfig, then, if configPath is non-empty, layering a JSON file
// over that. Later layers win. A missing configPath is not an error; a
// present-but-unreadable or malformed one is.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnv()

	if configPath == "" {
		return cfg, nil
	}
	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config %s: %w", configPath, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", configPath, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(envPrefix + "EXEC_PATH"); ok {
		c.ExecPath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "STRENGTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Strength = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "KEY_BACKEND"); ok {
		c.KeyBackend = v
	}
	if v, ok := os.LookupEnv(envPrefix + "KEY_FILE_DIR"); ok {
		c.KeyFileDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "BOLT_PATH"); ok {
		c.BoltPath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "EVIDENCE_DSN"); ok {
		c.EvidenceDSN = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LANGUAGE"); ok {
		c.Language = v
	}
}

// Validate checks the fields this module can act on without touching the
// filesystem or network: strength range, language override, and key
// backend name.
func (c Config) Validate() error {
	if c.Strength < 1 || c.Strength > 30 {
		return fmt.Errorf("strength %d out of range [1,30]", c.Strength)
	}
	if !ValidLanguage(c.Language) {
		return ErrInvalidLanguage
	}
	switch c.KeyBackend {
	case "mem", "file", "bolt":
	default:
		return fmt.Errorf("unknown key backend %q", c.KeyBackend)
	}
	return nil
}
