package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sagarc03/oss"
)

// ProfileEntry holds one named set of keys plus its endpoint settings.
type ProfileEntry struct {
	Name            string `yaml:"name"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	AccessKeySecret string `yaml:"access_key_secret,omitempty"`
	SecurityToken   string `yaml:"security_token,omitempty"`
	Default         bool   `yaml:"default,omitempty"`
}

// Credentials returns the keys of the profile.
func (p *ProfileEntry) Credentials() oss.Credentials {
	return oss.Credentials{
		AccessKeyID:     p.AccessKeyID,
		AccessKeySecret: p.AccessKeySecret,
		SecurityToken:   p.SecurityToken,
	}
}

// ProfileFile is the on-disk profiles document.
type ProfileFile struct {
	Profiles []ProfileEntry `yaml:"profiles"`
}

// GetProfile returns the profile by name, or the default one when name is
// empty.
func (f *ProfileFile) GetProfile(name string) (*ProfileEntry, error) {
	if len(f.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	if name == "" {
		return f.GetDefaultProfile()
	}
	for i := range f.Profiles {
		if f.Profiles[i].Name == name {
			return &f.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// GetDefaultProfile returns the profile marked default, else the first one.
func (f *ProfileFile) GetDefaultProfile() (*ProfileEntry, error) {
	if len(f.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	for i := range f.Profiles {
		if f.Profiles[i].Default {
			return &f.Profiles[i], nil
		}
	}
	return &f.Profiles[0], nil
}

// AddProfile appends p. Names must be unique.
func (f *ProfileFile) AddProfile(p ProfileEntry) error {
	if p.Name == "" {
		return ErrProfileName
	}
	for i := range f.Profiles {
		if f.Profiles[i].Name == p.Name {
			return fmt.Errorf("%w: %s", ErrProfileExists, p.Name)
		}
	}
	if p.Default {
		f.clearDefault()
	}
	f.Profiles = append(f.Profiles, p)
	return nil
}

// UpdateProfile replaces the profile with the same name.
func (f *ProfileFile) UpdateProfile(p ProfileEntry) error {
	for i := range f.Profiles {
		if f.Profiles[i].Name == p.Name {
			if p.Default {
				f.clearDefault()
			}
			f.Profiles[i] = p
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProfileNotFound, p.Name)
}

// RemoveProfile deletes a profile by name.
func (f *ProfileFile) RemoveProfile(name string) error {
	for i := range f.Profiles {
		if f.Profiles[i].Name == name {
			f.Profiles = append(f.Profiles[:i], f.Profiles[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// SetDefault marks name as the only default profile.
func (f *ProfileFile) SetDefault(name string) error {
	if _, err := f.GetProfile(name); err != nil {
		return err
	}
	for i := range f.Profiles {
		f.Profiles[i].Default = f.Profiles[i].Name == name
	}
	return nil
}

func (f *ProfileFile) clearDefault() {
	for i := range f.Profiles {
		f.Profiles[i].Default = false
	}
}

// ProfileNames lists profile names in file order.
func (f *ProfileFile) ProfileNames() []string {
	names := make([]string, len(f.Profiles))
	for i := range f.Profiles {
		names[i] = f.Profiles[i].Name
	}
	return names
}

// Save writes the file with owner-only permissions, creating the parent
// directory if needed.
func (f *ProfileFile) Save(path string) error {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("write profile file: %w", err)
	}
	return nil
}

// LoadProfileFile reads the profiles file at path.
func LoadProfileFile(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(filepath.Clean(path)) //#nosec G304 -- path is user-provided config file
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	var f ProfileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profile file: %w", err)
	}
	return &f, nil
}

// DefaultProfilePath returns ~/.oss/profiles.yaml.
func DefaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".oss", "profiles.yaml")
}
