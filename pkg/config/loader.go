package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TREETX_"
	// FileName is the per-tree config file inside the control directory.
	FileName = "config.toml"
	// DefaultControlDir is used to locate the per-tree config file.
	DefaultControlDir = ".treetx"
)

// Default returns the configuration built from the embedded defaults alone.
func Default() *Config {
	cfg, err := decode(getSystemDefaults())
	if err != nil {
		// The embedded file is part of the binary; failing here is a build defect.
		panic(fmt.Sprintf("embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load builds the configuration for the tree rooted at treeRoot. An empty
// treeRoot skips the per-tree file.
func Load(treeRoot string) (*Config, error) {
	return LoadWithOverrides(treeRoot, nil)
}

// LoadWithOverrides is Load with a final layer of flat "section.key" values,
// typically taken from command line flags.
func LoadWithOverrides(treeRoot string, overrides map[string]interface{}) (*Config, error) {
	logger := logging.GetLogger("config")

	// 1. Embedded defaults
	merged := getSystemDefaults()

	// 2. Tree config if it exists
	if treeRoot != "" {
		path := ConfigPath(treeRoot)
		if _, err := os.Stat(path); err == nil {
			tempK := koanf.New(".")
			if err := tempK.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load tree config from %s", path)
			}
			mergeMaps(merged, tempK.All())
			logger.Debug().Str("path", path).Msg("Loaded tree config")
		}
	}

	// 3. Environment
	tempK := koanf.New(".")
	err := tempK.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
	}
	mergeMaps(merged, tempK.All())

	// 4. Explicit overrides
	mergeMaps(merged, overrides)

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns where the per-tree config file lives.
func ConfigPath(treeRoot string) string {
	return filepath.Join(treeRoot, DefaultControlDir, FileName)
}

// envKey maps TREETX_TRANSFORM__DIRECT_PATHS to transform.direct_paths.
// A double underscore separates section from key so single underscores
// survive inside key names.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func decode(flat map[string]interface{}) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(flat, "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load merged config")
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "invalid configuration")
	}
	return &cfg, nil
}

// mergeMaps overlays flat src keys onto dest.
func mergeMaps(dest, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if destMap, ok := dest[key].(map[string]interface{}); ok {
				mergeMaps(destMap, srcMap)
				continue
			}
		}
		dest[key] = srcVal
	}
}

func getSystemDefaults() map[string]interface{} {
	k := koanf.New(".")
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return map[string]interface{}{}
	}
	return k.All()
}
