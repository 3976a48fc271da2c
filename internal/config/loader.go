package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "GOPHCHAT_"

// aliases maps short environment names kept for compatibility to keys.
// Earlier entries win over later ones for the same key.
var aliases = []struct {
	env string
	key string
}{
	{"SECRET_KEY", "auth.secret_key"},
	{"API_KEY", "llm.api_key"},
	{"GEMINI_API_KEY", "llm.api_key"},
}

// ErrReadBytesNotSupported is returned by the in-memory provider.
var ErrReadBytesNotSupported = errors.New("config: ReadBytes not supported by map provider")

// mapProvider feeds a flat map with dotted keys into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the environment and flag overrides keyed like "auth.token_ttl".
// The result is not verified.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(mapProvider(aliasValues()), nil); err != nil {
		return nil, fmt.Errorf("load env aliases: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// envKey maps GOPHCHAT_AUTH_TOKEN_TTL to auth.token_ttl. Only the first
// underscore separates the section, key names keep theirs.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func aliasValues() map[string]any {
	out := make(map[string]any)
	for _, a := range aliases {
		if _, done := out[a.key]; done {
			continue
		}
		if v, ok := os.LookupEnv(a.env); ok && v != "" {
			out[a.key] = v
		}
	}
	return out
}
