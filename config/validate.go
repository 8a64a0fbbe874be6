package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("backend %s requires DataDir", cfg.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address must be set")
	}
	if cfg.RPC.RateLimitPerMinute < 0 || cfg.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.RateLimitPerMinute > 0 && cfg.RPC.Burst == 0 {
		return fmt.Errorf("rpc: Burst must be positive when RateLimitPerMinute is set")
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if cfg.Rent.LamportsPerByte == 0 {
		return fmt.Errorf("rent: LamportsPerByte must be positive")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when export is enabled")
	}
	for _, m := range cfg.PausedModules {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("PausedModules: empty module name")
		}
	}
	return nil
}
