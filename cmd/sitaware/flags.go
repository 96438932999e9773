package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags onto config keys. A flag only overrides
// the config file when it is set explicitly.
var flagKeys = map[string]string{
	"log-level":       "logLevel",
	"logs-dir":        "logsDir",
	"cameras":         "cameras.source",
	"feed-url":        "feed.url",
	"protocol":        "feed.protocol",
	"reconnect":       "feed.reconnect.enabled",
	"trail-points":    "trail.maxPoints",
	"fov":             "fov.degrees",
	"journal":         "journal.enabled",
	"influx":          "influx.enabled",
	"status-file":     "status.file",
	"status-interval": "status.interval",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(BinaryName, pflag.ContinueOnError)
	fs.String("config-dir", ".", "directory containing "+configFileHint)
	fs.Bool("version", false, "print version and exit")

	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("logs-dir", "./logs", "directory for log files; empty logs to stdout")
	fs.String("cameras", "./static/camera_data.json", "camera calibration path or URI (file, http, https, s3)")
	fs.String("feed-url", "ws://localhost:5001", "live feed websocket URL")
	fs.String("protocol", "socketio", "feed framing: socketio or envelope")
	fs.Bool("reconnect", false, "reconnect with backoff after the feed drops")
	fs.Int("trail-points", 50, "positions kept per target trail")
	fs.Float64("fov", 75, "camera field of view in degrees")
	fs.Bool("journal", false, "keep an in-memory frame journal")
	fs.Bool("influx", false, "write per-frame metrics to InfluxDB")
	fs.String("status-file", "", "file rewritten with the scene summary")
	fs.Duration("status-interval", 0, "scene summary interval")
	return fs
}

// bindFlags registers every mapped flag with viper.
func bindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}
