package main

import (
	"github.com/spaceshield/sitaware/internal/camera"
	"github.com/spaceshield/sitaware/internal/config"
	"github.com/spaceshield/sitaware/internal/feed"
	"github.com/spaceshield/sitaware/internal/fov"
	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/internal/influx"
	"github.com/spaceshield/sitaware/internal/journal"
	"github.com/spaceshield/sitaware/internal/pipeline"
)

// sessionConfig assembles the pipeline configuration from viper.
func sessionConfig() (pipeline.Config, error) {
	cams := config.GetCameraConfig()
	fc := config.GetFeedConfig()
	fovCfg := config.GetFOVConfig()

	cfg := pipeline.Config{
		CameraSource: cams.Source,
		Feed: feed.Config{
			URL:              fc.URL,
			Protocol:         fc.Protocol,
			HandshakeTimeout: fc.HandshakeTimeout,
			Reconnect: feed.ReconnectConfig{
				Enabled:     fc.Reconnect.Enabled,
				MaxAttempts: fc.Reconnect.MaxAttempts,
				MaxBackoff:  fc.Reconnect.MaxBackoff,
			},
		},
		TrailPoints: config.GetTrailConfig().MaxPoints,
		FOV: fov.Config{
			FOVDegrees:   fovCfg.Degrees,
			VisualLength: fovCfg.VisualLength,
			BlobRadius:   fovCfg.BlobRadius,
		},
	}

	if g := config.GetGeorefConfig(); g.Enabled {
		origin := geo.GeoPoint{Longitude: g.OriginLon, Latitude: g.OriginLat, Altitude: g.OriginAlt}
		if _, err := geo.NewGeoreference(origin); err != nil {
			return pipeline.Config{}, err
		}
		cfg.Georef = &origin
	}

	if j := config.GetJournalConfig(); j.Enabled {
		cfg.Journal = &journal.Config{MaxFrames: j.MaxFrames, FlushInterval: j.FlushInterval}
	}

	ic := config.GetInfluxConfig()
	cfg.Influx = influx.Config{
		Enabled: ic.Enabled,
		URL:     ic.URL,
		Token:   ic.Token,
		Org:     ic.Org,
		Bucket:  ic.Bucket,
		Source:  fc.URL,
	}

	return cfg, nil
}

func cameraFetcher() *camera.Fetcher {
	cams := config.GetCameraConfig()
	return camera.NewFetcher(cams.Timeout, camera.WithS3(camera.S3Options{
		Region:    cams.S3.Region,
		Endpoint:  cams.S3.Endpoint,
		PathStyle: cams.S3.PathStyle,
	}))
}
