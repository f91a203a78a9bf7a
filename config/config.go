package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the campaignd daemon configuration.
type Config struct {
	RPCAddress    string   `toml:"RPCAddress"`
	DataDir       string   `toml:"DataDir"`
	NetworkName   string   `toml:"NetworkName"`
	Environment   string   `toml:"Environment"`
	PausedModules []string `toml:"PausedModules"`

	Policy PolicyConfig `toml:"policy"`
}

// PolicyConfig configures the built-in manager hook policy module.
type PolicyConfig struct {
	// ModuleAddress is the hex address the policy is registered under.
	ModuleAddress string `toml:"ModuleAddress"`
}

// Load reads the configuration from path, creating a default file when none
// exists. Unknown keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "rewardnet-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./rewardnet-data"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	return cfg, nil
}

// IsPaused implements the native module pause view over the static config.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.PausedModules {
		if strings.EqualFold(strings.TrimSpace(m), module) {
			return true
		}
	}
	return false
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:    ":8080",
		DataDir:       "./rewardnet-data",
		NetworkName:   "rewardnet-local",
		Environment:   "local",
		PausedModules: []string{},
		Policy: PolicyConfig{
			ModuleAddress: "0x0000000000000000000000000000000000000001",
		},
	}
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
