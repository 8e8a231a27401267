package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched, in order.
var DefaultConfigPaths = []string{
	"playlistnet.yaml",
	"playlistnet.yml",
}

// Environment variables read by Load.
const (
	ConfigPathEnvVar = "PLAYLISTNET_CONFIG"
	EnvPrefix        = "PLAYLISTNET_"
)

// defaultParams holds the command-line defaults plus the driver settings
// (step budget, directories, checkpoint cadence).
func defaultParams() Params {
	return Params{
		NN:                "cnn",
		Mode:              "train",
		AttentionMode:     "luong",
		LearningRate:      0.5,
		RLLearningRate:    0.0005,
		AdamLearningRate:  0.001,
		InitWeight:        0.1,
		MaxGradientNorm:   5.0,
		NumUnits:          128,
		NumLayers:         2,
		BatchSize:         32,
		EmbeddingSize:     128,
		MaxLen:            210,
		BeamSearch:        true,
		BeamWidth:         1,
		Dropout:           0.2,
		StartDecayStep:    20000,
		DecaySteps:        10000,
		DecayFactor:       0.98,
		StepsPerStats:     10,
		ScheduledSampling: true,
		BatchNorm:         true,
		NumSteps:          20000,
		Seed:              1234,
		ModelDir:          "models",
		DataDir:           "data",
		ResultsDir:        "results",
		CheckpointEvery:   1000,
		ValidBatches:      10,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Defaults returns the default parameter bundle.
func Defaults() Params {
	return defaultParams()
}

// Load builds Params from defaults, the optional config file, environment
// variables and finally overrides (typically the flags set on the command
// line, keyed by koanf path).
func Load(overrides map[string]any) (Params, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultParams(), "koanf"), nil); err != nil {
		return Params{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Params{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return Params{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return Params{}, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	var p Params
	if err := k.Unmarshal("", &p); err != nil {
		return Params{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return p, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps PLAYLISTNET_BATCH_SIZE to batch_size. A double
// underscore becomes a path separator.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}
