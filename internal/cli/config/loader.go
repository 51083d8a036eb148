package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names searched in the working directory.
const (
	ConfigFileName    = "sqlsense.yaml"
	ConfigFileNameAlt = "sqlsense.yml"
)

// findConfigFile returns the config file to use: the explicit path when
// given, otherwise the first of sqlsense.yaml / sqlsense.yml that exists.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// envKey maps an environment variable name to a config key. Only the
// serve and metadata sections nest; remaining underscores belong to the
// key itself.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "SQLSENSE_"))
	for _, section := range []string{"serve_", "metadata_"} {
		if strings.HasPrefix(s, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(s, section)
		}
	}
	return s
}

// Load loads configuration with precedence (highest to lowest):
// flags > SQLSENSE_ environment variables > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"batch_separator": DefaultBatchSeparator,
		"max_join_depth":  DefaultMaxJoinDepth,
		"history_file":    DefaultHistoryFile,
		"serve.addr":      DefaultServeAddr,
		"serve.watch":     true,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. config file
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. environment variables: SQLSENSE_SERVE_ADDR -> serve.addr,
	// SQLSENSE_SCHEMA_FILE -> schema_file
	if err := k.Load(env.Provider("SQLSENSE_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// kebab-case flags map to snake_case keys (--schema-file ->
			// schema_file); dots stay dots for nested keys
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}
