// Package config provides configuration management for the caaspp CLI.
//
// This package layers defaults, the caaspp.yaml file, CAASPP_ environment
// variables and command-line flags into the shared configuration types
// from internal/config, which are re-exported here via type aliases.
package config

import (
	sharedcfg "github.com/eduanalytics/caaspp/internal/config"
)

// Config is an alias for the shared configuration.
// This allows CLI code to use config.Config without importing internal/config.
type Config = sharedcfg.Config

// WarehouseConfig is an alias for the shared warehouse configuration.
type WarehouseConfig = sharedcfg.WarehouseConfig

// EnvPrefix is the prefix of environment variables read by the loader.
// A double underscore separates nesting levels: CAASPP_WAREHOUSE__PASSWORD
// sets warehouse.password.
const EnvPrefix = "CAASPP_"

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"latest-year":           "years.latest",
	"years":                 "years.count",
	"workers":               "workers",
	"purge-unlocated-years": "purge_unlocated_years",
	"selector":              "source.selector",
	"warehouse":             "warehouse.type",
	"database":              "warehouse.path",
	"schema":                "warehouse.schema",
	"index-backend":         "index.backend",
	"index-dsn":             "index.dsn",
	"state":                 "state.path",
	"log-level":             "log.level",
	"log-format":            "log.format",
	"pushgateway":           "metrics.pushgateway_url",
}
