package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/amrbekhit/spiboot"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"spiboot.yaml", `
bus: SPI1.0
frequency: 1000000
mode: 3
ack_timeout: 250ms
profile:
  name: stm32g0
  page_size: 1024
  pages_per_4k: 4
`},
		{"spiboot.toml", `
bus = "SPI1.0"
frequency = 1000000
mode = 3
ack_timeout = "250ms"

[profile]
name = "stm32g0"
page_size = 1024
pages_per_4k = 4
`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, test.name, test.content))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Bus != "SPI1.0" || cfg.Frequency != 1000000 || cfg.Mode != 3 {
				t.Errorf("bus settings %+v", cfg)
			}
			if cfg.AckTimeout != 250*time.Millisecond {
				t.Errorf("ack timeout %v", cfg.AckTimeout)
			}
			// Unset values keep their defaults.
			if cfg.EraseTimeout != spiboot.DefaultEraseTimeout || cfg.Baud != 115200 {
				t.Errorf("defaults lost: %+v", cfg)
			}
			if cfg.Profile.Name != "stm32g0" || cfg.Profile.PageSize != 1024 || cfg.Profile.PagesPer4K != 4 {
				t.Errorf("profile %+v", cfg.Profile)
			}
			if cfg.Profile.FlashBase != 0x08000000 {
				t.Errorf("flash base %08X", cfg.Profile.FlashBase)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown.yaml", "bus: SPI1.0\nspeed: 10\n"},
		{"unknown.toml", "bus = \"SPI1.0\"\nspeed = 10\n"},
		{"mode.yaml", "mode: 4\n"},
		{"syntax.toml", "bus = \n"},
	}
	for _, test := range tests {
		if _, err := loadConfig(writeConfig(t, test.name, test.content)); err == nil {
			t.Errorf("%v: no error", test.name)
		}
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: no error")
	}
}

func TestConfigOptions(t *testing.T) {
	if got := len(defaultFileConfig().options()); got != 4 {
		t.Errorf("%d options", got)
	}
}
