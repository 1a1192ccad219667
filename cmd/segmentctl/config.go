package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	cliConfigName = "config"
	cliConfigType = "yaml"

	cfgKeyOutput     = "output"
	cfgKeyActor      = "actor"
	cfgKeyAllowPurge = "allow_purge"
)

// Output formats accepted by --output and the output config key.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// defaultConfigDir is $XDG_CONFIG_HOME/segmentctl, falling back to
// ~/.config/segmentctl.
func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "segmentctl")
	}
	return ".segmentctl"
}

// loadCLIConfig reads config.yaml from configDir. A missing file leaves the
// defaults in place.
func loadCLIConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyOutput, outputText)
	v.SetDefault(cfgKeyActor, 0)
	v.SetDefault(cfgKeyAllowPurge, false)
	v.SetConfigName(cliConfigName)
	v.SetConfigType(cliConfigType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("SEGMENTCTL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read cli config: %w", err)
	}
	return v, nil
}

func validOutput(format string) bool {
	switch format {
	case outputText, outputJSON, outputYAML:
		return true
	}
	return false
}
