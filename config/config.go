package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vaultswap/core/state"
	"vaultswap/native/common"
)

// Environment variables that override secrets and deployment labels so they
// need not be written to the config file.
const (
	EnvRPCToken    = "VAULTSWAP_RPC_TOKEN"
	EnvEnvironment = "VAULTSWAP_ENV"
	EnvOTelHeaders = "VAULTSWAP_OTEL_HEADERS"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

type Config struct {
	NetworkName    string       `toml:"NetworkName"`
	DataDir        string       `toml:"DataDir"`
	Backend        string       `toml:"Backend"`
	GenesisFile    string       `toml:"GenesisFile"`
	MetricsAddress string       `toml:"MetricsAddress"`
	PausedModules  []string     `toml:"PausedModules"`
	Rent           state.Rent   `toml:"Rent"`
	Quota          common.Quota `toml:"Quota"`
	RPC            RPC          `toml:"RPC"`
	Logging        Logging      `toml:"Logging"`
	Telemetry      Telemetry    `toml:"Telemetry"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	Address             string `toml:"Address"`
	AuthToken           string `toml:"AuthToken"`
	RateLimitPerMinute  int    `toml:"RateLimitPerMinute"`
	Burst               int    `toml:"Burst"`
	MaxBodyBytes        int64  `toml:"MaxBodyBytes"`
	ReadTimeoutSeconds  int    `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int    `toml:"WriteTimeoutSeconds"`
	// TrustProxyHeaders keys rate limits on X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustProxyHeaders bool `toml:"TrustProxyHeaders"`
}

type Logging struct {
	Level       string `toml:"Level"`
	Format      string `toml:"Format"`
	Environment string `toml:"Environment"`
	File        string `toml:"File"`
	MaxSizeMB   int    `toml:"MaxSizeMB"`
	MaxBackups  int    `toml:"MaxBackups"`
}

// Telemetry configures OTLP/HTTP export. Headers uses "k=v,k2=v2".
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
	Headers     string  `toml:"Headers"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		NetworkName:    "vaultswap-local",
		DataDir:        "./vaultswap-data",
		Backend:        BackendLevelDB,
		MetricsAddress: ":9100",
		PausedModules:  []string{},
		Rent:           state.DefaultRent(),
		RPC: RPC{
			Address:             ":8545",
			RateLimitPerMinute:  600,
			Burst:               50,
			MaxBodyBytes:        1 << 20,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vaultswap-local"
	}
	if cfg.GenesisFile != "" && !filepath.IsAbs(cfg.GenesisFile) {
		cfg.GenesisFile = filepath.Join(filepath.Dir(path), cfg.GenesisFile)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(EnvRPCToken)); token != "" {
		cfg.RPC.AuthToken = token
	}
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Logging.Environment = env
	}
	if headers := strings.TrimSpace(os.Getenv(EnvOTelHeaders)); headers != "" {
		cfg.Telemetry.Headers = headers
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
