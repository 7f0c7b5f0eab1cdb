package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
)

const (
	appName    = "castbridge"
	configFile = "castbridge.conf"
)

// Values describes the configuration a user can set in the configuration
// file or override with command-line flags.
type Values struct {
	Device           string        `koanf:"device"`
	DiscoveryTimeout time.Duration `koanf:"discovery-timeout"`
	StatusInterval   time.Duration `koanf:"status-interval"`
	LogFile          string        `koanf:"log-file"`
	Debug            bool          `koanf:"debug"`
}

var defaultValues = map[string]any{
	"device":            "",
	"discovery-timeout": "3s",
	"status-interval":   "1s",
	"log-file":          "",
	"debug":             false,
}

// Config describes the configuration for the app.
type Config struct {
	path string

	Values Values
}

// NewConfig returns a configuration stored in the user configuration directory.
func NewConfig() *Config {
	return &Config{}
}

// NewConfigAt returns a configuration stored in dir.
func NewConfigAt(dir string) *Config {
	return &Config{path: dir}
}

// Load loads the defaults, the configuration file and the command-line
// flags, in that order. cliCtx may be nil.
func (c *Config) Load(k *koanf.Koanf, cliCtx *cli.Context) error {
	if err := c.createConfigDir(); err != nil {
		return err
	}

	for key, val := range defaultValues {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("config default %s: %w", key, err)
		}
	}

	cfgfile, err := c.FilePath()
	if err != nil {
		return err
	}

	if err := k.Load(file.Provider(cfgfile), hjson.Parser()); err != nil {
		return fmt.Errorf("config file %s: %w", cfgfile, err)
	}

	if cliCtx != nil {
		if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
			return fmt.Errorf("config flags: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", &c.Values, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("config values: %w", err)
	}

	return c.Values.validate()
}

func (v *Values) validate() error {
	if v.DiscoveryTimeout <= 0 {
		return fmt.Errorf("discovery-timeout must be positive, got %s", v.DiscoveryTimeout)
	}

	if v.StatusInterval <= 0 {
		return fmt.Errorf("status-interval must be positive, got %s", v.StatusInterval)
	}

	return nil
}

// Dir returns the configuration directory.
func (c *Config) Dir() string {
	return c.path
}

func (c *Config) createConfigDir() error {
	if c.path == "" {
		oscfg, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
		c.path = filepath.Join(oscfg, appName)
	}

	if err := os.MkdirAll(c.path, 0700); err != nil {
		return fmt.Errorf("the configuration directory could not be created at %s: %w", c.path, err)
	}

	return nil
}

// FilePath returns the configuration file path, writing a file with the
// default values when none exists.
func (c *Config) FilePath() (string, error) {
	confPath := filepath.Join(c.path, configFile)

	if _, err := os.Stat(confPath); err == nil {
		return confPath, nil
	}

	data, err := hjson.Parser().Marshal(defaultValues)
	if err != nil {
		return "", fmt.Errorf("config defaults: %w", err)
	}

	if err := os.WriteFile(confPath, data, 0644); err != nil {
		return "", fmt.Errorf("cannot create %s file at %s: %w", configFile, confPath, err)
	}

	return confPath, nil
}
