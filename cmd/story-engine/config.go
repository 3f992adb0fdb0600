// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/story-engine/internal/secrets"
	"github.com/pdiddy/story-engine/pkg/types"
)

const envPrefix = "STORY_ENGINE"

// legacyEnv maps config keys to the environment names older deployments
// set without the prefix.
var legacyEnv = map[string]string{
	"llm.api_key":  "SILICONFLOW_API_KEY",
	"llm.endpoint": "LLM_API_URL",
	"llm.model":    "LLM_MODEL",
}

// configureEnv makes every config key overridable as STORY_ENGINE_<KEY>
// with dots replaced by underscores, plus the legacy names.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

// setDefaults registers every field of types.DefaultConfig as a viper
// default so that AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper) error {
	data, err := json.Marshal(types.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding default config: %w", err)
	}
	flattenDefaults(v, "", tree)
	return nil
}

func flattenDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flattenDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig decodes and validates the effective configuration. The LLM
// API key falls back to the llm-api-key secret when config and
// environment leave it empty.
func loadConfig(v *viper.Viper, sec secrets.Set) (types.Config, error) {
	var cfg types.Config
	if err := setDefaults(v); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = sec.Get(secrets.LLMAPIKey)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
