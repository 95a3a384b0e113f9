package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"subpool/internal/shared/types"
)

// Default returns the built-in configuration. Every field can be overridden
// by the ini file and, for the validation-related keys, by the environment.
func Default() *types.Config {
	cfg := &types.Config{}
	cfg.SubscriptionFile = "subscriptions.txt"
	cfg.LogConf.Level = "info"
	cfg.StoreConf.DataDir = "data"
	cfg.FetcherConf.TimeoutS = 45
	cfg.FetcherConf.Concurrency = 8
	cfg.FetcherConf.MaxRedirects = 5
	cfg.ValidatorConf.TCPTimeoutS = 8
	cfg.ValidatorConf.BatchSize = 20
	cfg.ValidatorConf.BatchDelayS = 0.5
	cfg.ValidatorConf.MaxLatencyMS = 2000
	cfg.ValidatorConf.Mode = "strict"
	cfg.OutputConf.Dir = "output"
	cfg.OutputConf.MaxNodes = 100
	cfg.OutputConf.MiniNodes = 20
	return cfg
}

// LoadIni loads the behavior configuration file on top of the defaults.
// A missing file is not an error: the defaults plus environment apply.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return nil
		}
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	applyEnv(cfg)
	return nil
}

// applyEnv applies the recognized environment keys. The key names are part of
// the external interface and are stable.
func applyEnv(cfg *types.Config) {
	overrideFromEnvInt(&cfg.FetcherConf.TimeoutS, "subscription_fetch_timeout_s")
	overrideFromEnvInt(&cfg.ValidatorConf.TCPTimeoutS, "tcp_probe_timeout_s")
	overrideFromEnvInt(&cfg.ValidatorConf.BatchSize, "batch_size")
	overrideFromEnvFloat(&cfg.ValidatorConf.BatchDelayS, "batch_delay_s")
	overrideFromEnvInt(&cfg.ValidatorConf.MaxLatencyMS, "max_latency_ms")
	overrideFromEnvInt(&cfg.OutputConf.MaxNodes, "max_output_nodes")
	overrideFromEnvString(&cfg.ValidatorConf.Mode, "validation_mode")
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvFloat(target *float64, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if floatValue, err := strconv.ParseFloat(envValue, 64); err == nil {
			*target = floatValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		*target = envValue
	}
}
