package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagarc03/oss/checkpoint"
	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/config"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/metrics"
)

// session is a configured client plus what must be released after the
// command.
type session struct {
	client  *client.Client
	cleanup []func()
	reg     *prometheus.Registry
}

// newSession builds a client from the config loaded in ctx. With
// withCheckpoints and checkpoints enabled, a checkpoint store is opened.
func newSession(ctx context.Context, withCheckpoints bool) (*session, error) {
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := applyProfileEndpoint(cfg); err != nil {
		return nil, err
	}

	s := &session{}
	opts := []client.Option{client.WithLogger(slog.Default())}

	if metricsFile != "" {
		s.reg = prometheus.NewRegistry()
		opts = append(opts, client.WithObserver(metrics.NewClientMetrics(s.reg)))
	}

	if withCheckpoints && cfg.Checkpoint.Enabled {
		store, cleanup, err := checkpoint.Connect(ctx, cfg.Checkpoint.Config)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		s.cleanup = append(s.cleanup, cleanup)
		opts = append(opts, client.WithCheckpointStore(store))
		slog.Debug("checkpoint store opened", "type", cfg.Checkpoint.Type, "table", cfg.Checkpoint.Table)
	}

	c, err := client.NewFromConfig(cfg, opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.client = c
	return s, nil
}

// close releases resources and writes the metrics file if requested.
func (s *session) close() {
	for _, fn := range s.cleanup {
		fn()
	}
	if s.reg != nil {
		if err := prometheus.WriteToTextfile(metricsFile, s.reg); err != nil {
			slog.Warn("failed to write metrics", "file", metricsFile, "err", err)
		}
	}
}

// applyProfileEndpoint fills region and endpoint from the selected profile
// when neither is configured.
func applyProfileEndpoint(cfg *config.Config) error {
	if cfg.Region != "" || cfg.Endpoint != "" {
		return nil
	}
	path := cfg.Credentials.ProfileFile
	if path == "" {
		path = credentials.DefaultProfilePath()
	}
	file, err := credentials.LoadProfileFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	p, err := file.GetProfile(cfg.Credentials.Profile)
	if err != nil {
		if cfg.Credentials.Profile == "" {
			return nil
		}
		return err
	}
	cfg.Region, cfg.Endpoint = p.Region, p.Endpoint
	return nil
}
