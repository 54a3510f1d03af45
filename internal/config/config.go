// Package config loads the YAML configuration used by the cmd binaries.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Config struct {
	DataDir       string `yaml:"dataDir"`
	MinimumFreeGB int    `yaml:"minimumFreeGB"`
	LogLevel      string `yaml:"logLevel"`
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	config := Config{
		DataDir:       "modelvc-data",
		MinimumFreeGB: 1,
		LogLevel:      "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.DataDir == "" {
		config.DataDir = "modelvc-data"
	}
	if config.MinimumFreeGB == 0 {
		config.MinimumFreeGB = 1
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}

// Logger builds a logrus logger honoring the configured level.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
