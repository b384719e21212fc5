package clientcli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/clientcli"
	"github.com/sagarc03/oss/credentials"
)

func TestNewFormatter(t *testing.T) {
	t.Run("json formatter", func(t *testing.T) {
		formatter := clientcli.NewFormatter(true, false)
		_, ok := formatter.(*clientcli.JSONFormatter)
		assert.True(t, ok)
	})

	t.Run("human formatter", func(t *testing.T) {
		formatter := clientcli.NewFormatter(false, false)
		_, ok := formatter.(*clientcli.HumanFormatter)
		assert.True(t, ok)
	})

	t.Run("human formatter quiet", func(t *testing.T) {
		formatter := clientcli.NewFormatter(false, true)
		hf, ok := formatter.(*clientcli.HumanFormatter)
		require.True(t, ok)
		assert.True(t, hf.Quiet)
	})
}

func TestHumanFormatter_FormatUpload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		formatter := &clientcli.HumanFormatter{}
		result := clientcli.NewUploadResult("local.bin", "bucket", "remote.bin", &client.UploadResult{
			ETag:     `"ABC123"`,
			Parts:    3,
			Size:     3 << 20,
			CRC64:    "12345",
			Verified: true,
		})

		var buf bytes.Buffer
		require.NoError(t, formatter.FormatUpload(&buf, result))

		output := buf.String()
		assert.Contains(t, output, "Uploaded: local.bin -> oss://bucket/remote.bin (3.0 MB)")
		assert.Contains(t, output, `ETag:  "ABC123"`)
		assert.Contains(t, output, "Parts: 3")
		assert.Contains(t, output, "CRC64: 12345 (verified)")
	})

	t.Run("with error", func(t *testing.T) {
		formatter := &clientcli.HumanFormatter{}
		var buf bytes.Buffer
		require.NoError(t, formatter.FormatUpload(&buf, clientcli.UploadResult{
			LocalPath: "local.txt",
			Err:       errors.New("upload failed"),
		}))
		assert.Contains(t, buf.String(), "Error: local.txt - upload failed")
	})

	t.Run("quiet mode", func(t *testing.T) {
		formatter := &clientcli.HumanFormatter{Quiet: true}
		var buf bytes.Buffer
		require.NoError(t, formatter.FormatUpload(&buf, clientcli.UploadResult{LocalPath: "local.txt", Size: 1024}))
		assert.Empty(t, buf.String())
	})
}

func TestHumanFormatter_FormatDownload(t *testing.T) {
	tests := []struct {
		name     string
		result   *client.DownloadResult
		path     string
		contains []string
	}{
		{
			name:   "verified to file",
			result: &client.DownloadResult{Size: 2048, ETag: "etag123", ServerCRC64: "42", Verified: true},
			path:   "local.txt",
			contains: []string{
				"Downloaded: oss://bucket/remote.txt -> local.txt (2.0 KB)",
				"ETag:  etag123",
				"CRC64: 42 (verified)",
			},
		},
		{
			name:     "unchecked resume to stdout",
			result:   &client.DownloadResult{Size: 10, ServerCRC64: "42", Resumed: true},
			path:     "-",
			contains: []string{"Downloaded: oss://bucket/remote.txt (10 B)", "CRC64: 42 (not verified)", "Resumed from checkpoint"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &clientcli.HumanFormatter{}
			var buf bytes.Buffer
			require.NoError(t, formatter.FormatDownload(&buf, clientcli.NewDownloadResult("bucket", "remote.txt", tt.path, tt.result)))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestHumanFormatter_FormatList(t *testing.T) {
	t.Run("with items", func(t *testing.T) {
		formatter := &clientcli.HumanFormatter{}
		result := &clientcli.ListResult{Bucket: "bucket"}
		result.Append(&client.ListObjectsV2Result{
			CommonPrefixes: []client.CommonPrefix{{Prefix: "photos/"}},
			Contents: []client.ObjectProperties{
				{Key: "file1.txt", Size: 1024, LastModified: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
				{Key: "file2.txt", Size: 2048, LastModified: time.Date(2024, 1, 14, 9, 15, 0, 0, time.UTC)},
			},
			IsTruncated:           true,
			NextContinuationToken: "token123",
		})

		var buf bytes.Buffer
		require.NoError(t, formatter.FormatList(&buf, result))

		output := buf.String()
		assert.Contains(t, output, "KEY")
		assert.Contains(t, output, "LAST MODIFIED")
		assert.Contains(t, output, "photos/")
		assert.Contains(t, output, "DIR")
		assert.Contains(t, output, "2024-01-15 10:30:00")
		assert.Contains(t, output, "2 object(s)")
		assert.Contains(t, output, "3.0 KB total")
		assert.Contains(t, output, `--continuation-token "token123"`)
	})

	t.Run("empty list", func(t *testing.T) {
		formatter := &clientcli.HumanFormatter{}
		var buf bytes.Buffer
		require.NoError(t, formatter.FormatList(&buf, &clientcli.ListResult{}))
		assert.Contains(t, buf.String(), "No objects found")
	})
}

func TestListResult_Append(t *testing.T) {
	result := &clientcli.ListResult{}
	result.Append(&client.ListObjectsV2Result{
		Contents:              []client.ObjectProperties{{Key: "a", Size: 1}},
		IsTruncated:           true,
		NextContinuationToken: "next",
	})
	result.Append(&client.ListObjectsV2Result{
		Contents: []client.ObjectProperties{{Key: "b", Size: 2}},
	})

	require.Len(t, result.Items, 2)
	assert.Equal(t, "b", result.Items[1].Key)
	assert.Equal(t, int64(3), result.TotalSize())
	assert.Empty(t, result.NextToken, "last page clears the token")
}

func TestHumanFormatter_FormatPresign(t *testing.T) {
	result := clientcli.NewPresignResult(&client.PresignResult{
		Method:        http.MethodPut,
		URL:           "https://bucket.oss-cn-hangzhou.aliyuncs.com/k?x-oss-signature=abc",
		Expiration:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		SignedHeaders: http.Header{"Content-Type": []string{"text/plain"}},
	})

	t.Run("full", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatPresign(&buf, result))
		output := buf.String()
		assert.Contains(t, output, result.URL)
		assert.Contains(t, output, "Method:  PUT")
		assert.Contains(t, output, "Expires: 2024-01-15T10:30:00Z")
		assert.Contains(t, output, "Content-Type: text/plain")
	})

	t.Run("quiet prints only the url", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{Quiet: true}).FormatPresign(&buf, result))
		assert.Equal(t, result.URL+"\n", buf.String())
	})
}

func TestJSONFormatter_FormatUpload(t *testing.T) {
	formatter := &clientcli.JSONFormatter{}

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatUpload(&buf, clientcli.UploadResult{
		LocalPath: "local.txt",
		Bucket:    "bucket",
		Key:       "remote.txt",
		Size:      1024,
		Err:       errors.New("boom"),
	}))

	var output map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, "local.txt", output["local_path"])
	assert.Equal(t, "remote.txt", output["key"])
	assert.Equal(t, "boom", output["error"])
}

func TestJSONFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&clientcli.JSONFormatter{}).FormatList(&buf, &clientcli.ListResult{Bucket: "bucket"}))

	var output map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, []any{}, output["items"])
	assert.NotContains(t, output, "next_token")
}

func TestJSONFormatter_FormatError(t *testing.T) {
	formatter := &clientcli.JSONFormatter{}

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatError(&buf, errors.New("test error")))

	var output map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, "test error", output["error"])
}

func TestFormatProfiles(t *testing.T) {
	profiles := []credentials.ProfileEntry{
		{Name: "work", Region: "cn-hangzhou", AccessKeyID: "LTAI1234567890", AccessKeySecret: "secret-value-123"},
		{Name: "local", Endpoint: "http://localhost:9000", AccessKeyID: "short", Default: true},
	}

	t.Run("human list masks secrets", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatProfileList(&buf, profiles, "local", false))
		output := buf.String()
		assert.Contains(t, output, "https://oss-cn-hangzhou.aliyuncs.com")
		assert.Contains(t, output, "LTAI...7890")
		assert.Contains(t, output, "* local")
		assert.NotContains(t, output, "LTAI1234567890")
	})

	t.Run("human show", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatProfileShow(&buf, profiles[0], false, true))
		output := buf.String()
		assert.Contains(t, output, "Region:     cn-hangzhou")
		assert.Contains(t, output, "Secret Key: secret-value-123")
	})

	t.Run("json list", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.JSONFormatter{}).FormatProfileList(&buf, profiles, "local", false))

		var output struct {
			Profiles []map[string]any `json:"profiles"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
		require.Len(t, output.Profiles, 2)
		assert.Equal(t, "********", output.Profiles[1]["access_key"])
		assert.Equal(t, true, output.Profiles[1]["default"])
		assert.Equal(t, "(not set)", output.Profiles[1]["secret_key"])
	})
}
