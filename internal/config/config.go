// Package config loads tool configuration with viper. Every key has a
// working default so the tool runs without any config file present.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds tunables shared by the orchestrator and the writer.
type Config struct {
	// Verify enables per-range checksum verification during the copy.
	Verify bool `mapstructure:"verify"`

	Bmap struct {
		// Strict promotes the bmap format's default-substitution
		// leniencies to parse errors.
		Strict bool `mapstructure:"strict"`
	} `mapstructure:"bmap"`

	Copy struct {
		// BufferSize bounds individual read/write calls during the copy.
		BufferSize int `mapstructure:"buffer_size"`
	} `mapstructure:"copy"`

	Pipe struct {
		// Dir is where session progress FIFOs are created.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"pipe"`

	Writer struct {
		// Path overrides the privileged writer binary location. Empty
		// means: look next to the running executable, then in PATH.
		Path string `mapstructure:"path"`
	} `mapstructure:"writer"`
}

// Load reads configuration from bmapflash-config.yaml (searched in the
// working directory, ./config, $HOME/.bmapflash and /etc/bmapflash) and
// from BMAPFLASH_* environment variables (nested keys with underscores,
// e.g. BMAPFLASH_COPY_BUFFER_SIZE). A missing config file is fine;
// defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("bmapflash-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.bmapflash")
	v.AddConfigPath("/etc/bmapflash")

	v.SetDefault("verify", false)
	v.SetDefault("bmap.strict", false)
	v.SetDefault("copy.buffer_size", 1<<20)
	v.SetDefault("pipe.dir", os.TempDir())
	v.SetDefault("writer.path", "")

	v.SetEnvPrefix("BMAPFLASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}
