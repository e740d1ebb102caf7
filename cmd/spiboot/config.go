package main

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/amrbekhit/spiboot"
	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/physic"
)

// fileConfig is the content of the -config file, in YAML or TOML. Frequency
// is in Hz.
type fileConfig struct {
	Bus          string          `yaml:"bus" toml:"bus"`
	Frequency    int64           `yaml:"frequency" toml:"frequency"`
	Mode         int             `yaml:"mode" toml:"mode"`
	Bridge       string          `yaml:"bridge" toml:"bridge"`
	Baud         int             `yaml:"baud" toml:"baud"`
	AckTimeout   time.Duration   `yaml:"ack_timeout" toml:"ack_timeout"`
	EraseTimeout time.Duration   `yaml:"erase_timeout" toml:"erase_timeout"`
	ResetDelay   time.Duration   `yaml:"reset_delay" toml:"reset_delay"`
	Retries      int             `yaml:"retries" toml:"retries"`
	Profile      spiboot.Profile `yaml:"profile" toml:"profile"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Bus:          "/dev/spidev0.0",
		Frequency:    int64(spiboot.DefaultFrequency / physic.Hertz),
		Mode:         int(spiboot.Mode0),
		Baud:         115200,
		AckTimeout:   spiboot.DefaultAckTimeout,
		EraseTimeout: spiboot.DefaultEraseTimeout,
		ResetDelay:   spiboot.DefaultResetDelay,
		Retries:      spiboot.DefaultWriteRetries,
		Profile:      spiboot.DefaultProfile(),
	}
}

// loadConfig overlays the file at path on the defaults. The format is chosen
// by extension: .toml is TOML, anything else YAML.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return fileConfig{}, fmt.Errorf("load config: %v", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fileConfig{}, fmt.Errorf("load config: unknown keys %v", undecoded)
		}
	default:
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return fileConfig{}, fmt.Errorf("load config: %v", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return fileConfig{}, fmt.Errorf("load config: %v", err)
		}
	}

	if cfg.Mode < int(spiboot.Mode0) || cfg.Mode > int(spiboot.Mode3) {
		return fileConfig{}, fmt.Errorf("load config: mode %d out of range 0-3", cfg.Mode)
	}
	return cfg, nil
}

func (c fileConfig) options() []spiboot.Option {
	return []spiboot.Option{
		spiboot.WithAckTimeout(c.AckTimeout),
		spiboot.WithEraseTimeout(c.EraseTimeout),
		spiboot.WithResetDelay(c.ResetDelay),
		spiboot.WithWriteRetries(c.Retries),
	}
}
