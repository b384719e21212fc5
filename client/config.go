package client

import (
	"fmt"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/config"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/retry"
	"github.com/sagarc03/oss/transport"
)

// NewFromConfig creates a Client from loaded configuration. Options are
// applied after the ones derived from cfg, so they win. The checkpoint
// store is not opened here; pass WithCheckpointStore.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new client: %w", ErrConfigRequired)
	}

	backoff, err := retry.ParseBackoff(cfg.Retry.Backoff, cfg.Retry.BaseDelay, cfg.Retry.MaxBackoff)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	retryer := retry.NewStandard(
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithBackoff(backoff),
	)

	base := []Option{
		WithRetryer(retryer),
		WithCredentialsProvider(CredentialsFromConfig(cfg.Credentials)),
	}

	return New(Config{
		Region:             cfg.Region,
		Endpoint:           cfg.Endpoint,
		Product:            cfg.Product,
		SignatureVersion:   cfg.SignatureVersion,
		UsePathStyle:       cfg.UsePathStyle,
		AdditionalHeaders:  cfg.AdditionalHeaders,
		DisableUploadCRC:   cfg.Integrity.DisableUploadCRC,
		DisableDownloadCRC: cfg.Integrity.DisableDownloadCRC,
		Transport: transport.Config{
			ConnectTimeout:     cfg.Transport.ConnectTimeout,
			ReadWriteTimeout:   cfg.Transport.ReadWriteTimeout,
			MaxConnections:     cfg.Transport.MaxConnections,
			InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		},
	}, append(base, opts...)...)
}

// CredentialsFromConfig picks a provider: inline keys, then a named
// profile, then the environment followed by the default profile.
func CredentialsFromConfig(cfg config.CredentialsConfig) oss.CredentialsProvider {
	switch {
	case cfg.AccessKeyID != "" && cfg.AccessKeySecret != "":
		return credentials.Static(cfg.AccessKeyID, cfg.AccessKeySecret, cfg.SecurityToken)
	case cfg.Profile != "":
		return credentials.Profile(cfg.ProfileFile, cfg.Profile)
	default:
		return credentials.Chain(
			credentials.Env(),
			credentials.Profile(cfg.ProfileFile, ""),
		)
	}
}
