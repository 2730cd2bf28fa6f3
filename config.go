package main

import (
	"github.com/spf13/viper"
)

// Config carries the environment-derived settings. The flags in main take
// these as their defaults, so either mechanism works.
type Config struct {
	URL      string
	Calkit   string
	LogLevel string
	Metrics  string
}

// loadConfig resolves settings from CALIBRATION_* environment variables.
func loadConfig() Config {
	viper.SetDefault("CALIBRATION_URL", "ws://localhost:8888/ws/calibration")
	viper.SetDefault("CALIBRATION_CALKIT", "")
	viper.SetDefault("CALIBRATION_LOG_LEVEL", "info")
	viper.SetDefault("CALIBRATION_METRICS", "")

	viper.AutomaticEnv()
	viper.BindEnv("CALIBRATION_URL")
	viper.BindEnv("CALIBRATION_CALKIT")
	viper.BindEnv("CALIBRATION_LOG_LEVEL")
	viper.BindEnv("CALIBRATION_METRICS")

	return Config{
		URL:      viper.GetString("CALIBRATION_URL"),
		Calkit:   viper.GetString("CALIBRATION_CALKIT"),
		LogLevel: viper.GetString("CALIBRATION_LOG_LEVEL"),
		Metrics:  viper.GetString("CALIBRATION_METRICS"),
	}
}
