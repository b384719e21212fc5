// Package credentials implements oss.CredentialsProvider sources: static
// keys, environment variables, a YAML profiles file and a chain of those.
//
// Providers read their source on every call. The execution pipeline asks
// for credentials before each signing operation, so a rotated file or
// environment takes effect on the next attempt.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sagarc03/oss"
)

// Environment variable names read by Env.
const (
	EnvAccessKeyID     = "OSS_ACCESS_KEY_ID"
	EnvAccessKeySecret = "OSS_ACCESS_KEY_SECRET"
	EnvSessionToken    = "OSS_SESSION_TOKEN"
)

// StaticProvider returns the same credentials on every call.
type StaticProvider struct {
	creds oss.Credentials
}

// Static returns a provider for fixed keys. token may be empty.
func Static(accessKeyID, accessKeySecret, token string) *StaticProvider {
	return &StaticProvider{creds: oss.Credentials{
		AccessKeyID:     accessKeyID,
		AccessKeySecret: accessKeySecret,
		SecurityToken:   token,
	}}
}

func (p *StaticProvider) GetCredentials(context.Context) (oss.Credentials, error) {
	if !p.creds.HasKeys() {
		return oss.Credentials{}, fmt.Errorf("static: %w", ErrCredentialsNotFound)
	}
	return p.creds, nil
}

// EnvProvider reads OSS_ACCESS_KEY_ID, OSS_ACCESS_KEY_SECRET and
// OSS_SESSION_TOKEN.
type EnvProvider struct {
	lookup func(string) string
}

// Env returns a provider backed by the process environment.
func Env() *EnvProvider {
	return &EnvProvider{lookup: os.Getenv}
}

func (p *EnvProvider) GetCredentials(context.Context) (oss.Credentials, error) {
	creds := oss.Credentials{
		AccessKeyID:     p.lookup(EnvAccessKeyID),
		AccessKeySecret: p.lookup(EnvAccessKeySecret),
		SecurityToken:   p.lookup(EnvSessionToken),
	}
	if !creds.HasKeys() {
		return oss.Credentials{}, fmt.Errorf("environment: %w", ErrCredentialsNotFound)
	}
	return creds, nil
}

// ProfileProvider reads one profile from a profiles file.
type ProfileProvider struct {
	path string
	name string
}

// Profile returns a provider for the named profile in the file at path. An
// empty name selects the default profile; an empty path selects
// DefaultProfilePath.
func Profile(path, name string) *ProfileProvider {
	if path == "" {
		path = DefaultProfilePath()
	}
	return &ProfileProvider{path: path, name: name}
}

func (p *ProfileProvider) GetCredentials(context.Context) (oss.Credentials, error) {
	file, err := LoadProfileFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return oss.Credentials{}, fmt.Errorf("profile file %s: %w", p.path, ErrCredentialsNotFound)
		}
		return oss.Credentials{}, err
	}
	prof, err := file.GetProfile(p.name)
	if err != nil {
		return oss.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsNotFound, err)
	}
	creds := prof.Credentials()
	if !creds.HasKeys() {
		return oss.Credentials{}, fmt.Errorf("profile %s: %w", prof.Name, ErrCredentialsNotFound)
	}
	return creds, nil
}

// ChainProvider returns the first credentials any provider yields.
type ChainProvider struct {
	providers []oss.CredentialsProvider
}

// Chain tries providers in order. Providers reporting ErrCredentialsNotFound
// are skipped; any other error stops the chain.
func Chain(providers ...oss.CredentialsProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (p *ChainProvider) GetCredentials(ctx context.Context) (oss.Credentials, error) {
	var errs []error
	for _, provider := range p.providers {
		creds, err := provider.GetCredentials(ctx)
		if err == nil {
			if creds.IsExpired() {
				errs = append(errs, ErrCredentialsExpired)
				continue
			}
			return creds, nil
		}
		if !errors.Is(err, ErrCredentialsNotFound) {
			return oss.Credentials{}, err
		}
		errs = append(errs, err)
	}
	return oss.Credentials{}, fmt.Errorf("chain: %w", errors.Join(append([]error{ErrCredentialsNotFound}, errs...)...))
}

// Anonymous yields empty credentials. The pipeline skips signing for them.
type Anonymous struct{}

func (Anonymous) GetCredentials(context.Context) (oss.Credentials, error) {
	return oss.Credentials{}, nil
}
