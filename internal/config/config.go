package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved run configuration: flag values layered over an
// optional config file and YOINKC_* environment variables.
type Config struct {
	HostRoot  string `mapstructure:"host_root"`
	OutputDir string `mapstructure:"output_dir"`

	FromSnapshot string `mapstructure:"from_snapshot"`
	InspectOnly  bool   `mapstructure:"inspect_only"`

	TargetVersion    string `mapstructure:"target_version"`
	TargetImage      string `mapstructure:"target_image"`
	BaselinePackages string `mapstructure:"baseline_packages"`

	ConfigDiffs    bool `mapstructure:"config_diffs"`
	DeepBinaryScan bool `mapstructure:"deep_binary_scan"`
	QueryPodman    bool `mapstructure:"query_podman"`

	Validate      bool `mapstructure:"validate"`
	SkipPreflight bool `mapstructure:"skip_preflight"`

	PushRepo    string `mapstructure:"push_to_github"`
	GitHubToken string `mapstructure:"github_token"`
	Public      bool   `mapstructure:"public"`
	Yes         bool   `mapstructure:"yes"`

	// BridgeTimeout bounds every call through the privilege bridge.
	BridgeTimeout time.Duration `mapstructure:"bridge_timeout"`

	// Extra exclusion rules merged into the built-in lists.
	ExtraExcludePaths []string `mapstructure:"exclude_paths"`
	ExtraExcludeGlobs []string `mapstructure:"exclude_globs"`

	LogLevel string `mapstructure:"log_level"`
	NoColor  bool   `mapstructure:"no_color"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host_root", "/host")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("bridge_timeout", 120*time.Second)
	v.SetDefault("log_level", "info")
}

// Load reads the optional config file and environment, then unmarshals into
// a Config. Flag bindings are applied by the command layer before Load runs.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("YOINKC")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("yoinkc")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/yoinkc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
