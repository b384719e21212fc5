package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss/credentials"
)

func TestProfileFile_Operations(t *testing.T) {
	f := &credentials.ProfileFile{}

	_, err := f.GetProfile("")
	assert.ErrorIs(t, err, credentials.ErrNoProfiles)

	require.NoError(t, f.AddProfile(credentials.ProfileEntry{Name: "a", AccessKeyID: "1"}))
	require.NoError(t, f.AddProfile(credentials.ProfileEntry{Name: "b", AccessKeyID: "2"}))
	assert.ErrorIs(t, f.AddProfile(credentials.ProfileEntry{Name: "a"}), credentials.ErrProfileExists)
	assert.ErrorIs(t, f.AddProfile(credentials.ProfileEntry{}), credentials.ErrProfileName)

	def, err := f.GetDefaultProfile()
	require.NoError(t, err)
	assert.Equal(t, "a", def.Name, "first profile is the implicit default")

	require.NoError(t, f.SetDefault("b"))
	def, err = f.GetDefaultProfile()
	require.NoError(t, err)
	assert.Equal(t, "b", def.Name)
	assert.ErrorIs(t, f.SetDefault("zzz"), credentials.ErrProfileNotFound)

	require.NoError(t, f.UpdateProfile(credentials.ProfileEntry{Name: "a", AccessKeyID: "changed", Default: true}))
	a, err := f.GetProfile("a")
	require.NoError(t, err)
	assert.Equal(t, "changed", a.AccessKeyID)
	b, err := f.GetProfile("b")
	require.NoError(t, err)
	assert.False(t, b.Default, "only one default at a time")
	assert.ErrorIs(t, f.UpdateProfile(credentials.ProfileEntry{Name: "zzz"}), credentials.ErrProfileNotFound)

	require.NoError(t, f.RemoveProfile("a"))
	assert.Equal(t, []string{"b"}, f.ProfileNames())
	assert.ErrorIs(t, f.RemoveProfile("a"), credentials.ErrProfileNotFound)
}

func TestProfileFile_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profiles.yaml")
	f := &credentials.ProfileFile{}
	require.NoError(t, f.AddProfile(credentials.ProfileEntry{
		Name:            "dev",
		Region:          "cn-hangzhou",
		Endpoint:        "https://oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "ak",
		AccessKeySecret: "sk",
		Default:         true,
	}))
	require.NoError(t, f.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := credentials.LoadProfileFile(path)
	require.NoError(t, err)
	assert.Equal(t, f, loaded)

	require.NoError(t, os.WriteFile(path, []byte("profiles: [unterminated"), 0o600))
	_, err = credentials.LoadProfileFile(path)
	assert.ErrorContains(t, err, "parse profile file")
}
