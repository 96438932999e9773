package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "sitaware.cfg.json"

// CameraConfig controls the calibration fetch.
type CameraConfig struct {
	Source  string        `json:"source" mapstructure:"source"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	S3      S3Config      `json:"s3" mapstructure:"s3"`
}

// S3Config configures s3:// calibration sources.
type S3Config struct {
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	PathStyle bool   `json:"pathStyle" mapstructure:"pathStyle"`
}

// FeedConfig controls the live target subscription.
type FeedConfig struct {
	URL              string          `json:"url" mapstructure:"url"`
	Protocol         string          `json:"protocol" mapstructure:"protocol"`
	HandshakeTimeout time.Duration   `json:"handshakeTimeout" mapstructure:"handshakeTimeout"`
	Reconnect        ReconnectConfig `json:"reconnect" mapstructure:"reconnect"`
}

// ReconnectConfig enables the optional reconnect loop of the feed.
type ReconnectConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	MaxAttempts int           `json:"maxAttempts" mapstructure:"maxAttempts"`
	MaxBackoff  time.Duration `json:"maxBackoff" mapstructure:"maxBackoff"`
}

// TrailConfig holds the per-target history cap.
type TrailConfig struct {
	MaxPoints int `json:"maxPoints" mapstructure:"maxPoints"`
}

// FOVConfig holds the camera cue dimensions.
type FOVConfig struct {
	Degrees      float64 `json:"degrees" mapstructure:"degrees"`
	VisualLength float64 `json:"visualLength" mapstructure:"visualLength"`
	BlobRadius   float64 `json:"blobRadius" mapstructure:"blobRadius"`
}

// GeorefConfig pins the scene origin to a WGS84 location.
type GeorefConfig struct {
	Enabled   bool    `json:"enabled" mapstructure:"enabled"`
	OriginLon float64 `json:"originLon" mapstructure:"originLon"`
	OriginLat float64 `json:"originLat" mapstructure:"originLat"`
	OriginAlt float64 `json:"originAlt" mapstructure:"originAlt"`
}

// JournalConfig controls the in-memory frame journal.
type JournalConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	MaxFrames     int           `json:"maxFrames" mapstructure:"maxFrames"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// InfluxConfig controls the optional metrics sink.
type InfluxConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`
}

// OTelConfig controls the OpenTelemetry log provider.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// SimulatorConfig controls the demo feed producer.
type SimulatorConfig struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Protocol string        `json:"protocol" mapstructure:"protocol"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Targets  int           `json:"targets" mapstructure:"targets"`
	Seed     int64         `json:"seed" mapstructure:"seed"`
	// Random replaces the two demo targets with Targets seeded bodies.
	Random bool `json:"random" mapstructure:"random"`
	// Cameras, when set, names a calibration resource. Bodies are then
	// projected into those cameras and re-triangulated before sending.
	Cameras string `json:"cameras" mapstructure:"cameras"`
	// RayGap rejects intersections whose rays miss by more than this.
	RayGap float64 `json:"rayGap" mapstructure:"rayGap"`
}

// StatusConfig controls the periodic scene summary.
type StatusConfig struct {
	File     string        `json:"file" mapstructure:"file"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// SetDefaults registers every default value. Load calls it; binaries that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("cameras.source", "./static/camera_data.json")
	viper.SetDefault("cameras.timeout", "10s")
	viper.SetDefault("cameras.s3.region", "us-east-1")
	viper.SetDefault("cameras.s3.endpoint", "")
	viper.SetDefault("cameras.s3.pathStyle", false)

	viper.SetDefault("feed.url", "ws://localhost:5001")
	viper.SetDefault("feed.protocol", "socketio")
	viper.SetDefault("feed.handshakeTimeout", "10s")
	viper.SetDefault("feed.reconnect.enabled", false)
	viper.SetDefault("feed.reconnect.maxAttempts", 10)
	viper.SetDefault("feed.reconnect.maxBackoff", "30s")

	viper.SetDefault("trail.maxPoints", 50)

	viper.SetDefault("fov.degrees", 75.0)
	viper.SetDefault("fov.visualLength", 50.0)
	viper.SetDefault("fov.blobRadius", 3.5)

	viper.SetDefault("georef.enabled", false)
	viper.SetDefault("georef.originLon", 0.0)
	viper.SetDefault("georef.originLat", 0.0)
	viper.SetDefault("georef.originAlt", 0.0)

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.maxFrames", 10000)
	viper.SetDefault("journal.flushInterval", "1s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "sitaware")
	viper.SetDefault("influx.bucket", "pipeline")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "sitaware")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metricInterval", "30s")

	viper.SetDefault("simulator.addr", ":5001")
	viper.SetDefault("simulator.protocol", "socketio")
	viper.SetDefault("simulator.interval", "100ms")
	viper.SetDefault("simulator.targets", 2)
	viper.SetDefault("simulator.seed", 1)
	viper.SetDefault("simulator.random", false)
	viper.SetDefault("simulator.cameras", "")
	viper.SetDefault("simulator.rayGap", 0.05)

	viper.SetDefault("status.file", "")
	viper.SetDefault("status.interval", "5s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCameraConfig returns the calibration source settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		Source:  viper.GetString("cameras.source"),
		Timeout: viper.GetDuration("cameras.timeout"),
		S3: S3Config{
			Region:    viper.GetString("cameras.s3.region"),
			Endpoint:  viper.GetString("cameras.s3.endpoint"),
			PathStyle: viper.GetBool("cameras.s3.pathStyle"),
		},
	}
}

// GetFeedConfig returns the live feed settings.
func GetFeedConfig() FeedConfig {
	return FeedConfig{
		URL:              viper.GetString("feed.url"),
		Protocol:         viper.GetString("feed.protocol"),
		HandshakeTimeout: viper.GetDuration("feed.handshakeTimeout"),
		Reconnect: ReconnectConfig{
			Enabled:     viper.GetBool("feed.reconnect.enabled"),
			MaxAttempts: viper.GetInt("feed.reconnect.maxAttempts"),
			MaxBackoff:  viper.GetDuration("feed.reconnect.maxBackoff"),
		},
	}
}

// GetTrailConfig returns the trail settings.
func GetTrailConfig() TrailConfig {
	return TrailConfig{MaxPoints: viper.GetInt("trail.maxPoints")}
}

// GetFOVConfig returns the camera cue dimensions.
func GetFOVConfig() FOVConfig {
	return FOVConfig{
		Degrees:      viper.GetFloat64("fov.degrees"),
		VisualLength: viper.GetFloat64("fov.visualLength"),
		BlobRadius:   viper.GetFloat64("fov.blobRadius"),
	}
}

// GetGeorefConfig returns the georeference origin.
func GetGeorefConfig() GeorefConfig {
	return GeorefConfig{
		Enabled:   viper.GetBool("georef.enabled"),
		OriginLon: viper.GetFloat64("georef.originLon"),
		OriginLat: viper.GetFloat64("georef.originLat"),
		OriginAlt: viper.GetFloat64("georef.originAlt"),
	}
}

// GetJournalConfig returns the frame journal settings.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:       viper.GetBool("journal.enabled"),
		MaxFrames:     viper.GetInt("journal.maxFrames"),
		FlushInterval: viper.GetDuration("journal.flushInterval"),
	}
}

// GetInfluxConfig returns the metrics sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL:     viper.GetString("influx.url"),
		Token:   viper.GetString("influx.token"),
		Org:     viper.GetString("influx.org"),
		Bucket:  viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetSimulatorConfig returns the demo producer settings.
func GetSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Addr:     viper.GetString("simulator.addr"),
		Protocol: viper.GetString("simulator.protocol"),
		Interval: viper.GetDuration("simulator.interval"),
		Targets:  viper.GetInt("simulator.targets"),
		Seed:     viper.GetInt64("simulator.seed"),
		Random:   viper.GetBool("simulator.random"),
		Cameras:  viper.GetString("simulator.cameras"),
		RayGap:   viper.GetFloat64("simulator.rayGap"),
	}
}

// GetStatusConfig returns the periodic scene summary settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		File:     viper.GetString("status.file"),
		Interval: viper.GetDuration("status.interval"),
	}
}
