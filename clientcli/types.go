package clientcli

import (
	"net/http"
	"time"

	"github.com/sagarc03/oss/client"
)

// UploadResult represents the result of uploading a single file.
type UploadResult struct {
	LocalPath string `json:"local_path"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ETag      string `json:"etag,omitempty"`
	Size      int64  `json:"size_bytes"`
	Parts     int    `json:"parts,omitempty"`
	CRC64     string `json:"crc64,omitempty"`
	Verified  bool   `json:"crc_verified"`
	Err       error  `json:"-"` // nil on success
}

// NewUploadResult converts a multipart upload result.
func NewUploadResult(localPath, bucket, key string, res *client.UploadResult) UploadResult {
	return UploadResult{
		LocalPath: localPath,
		Bucket:    bucket,
		Key:       key,
		ETag:      res.ETag,
		Size:      res.Size,
		Parts:     res.Parts,
		CRC64:     res.CRC64,
		Verified:  res.Verified,
	}
}

// DownloadResult represents the result of downloading an object.
type DownloadResult struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	LocalPath string `json:"local_path"` // "-" for stdout
	ETag      string `json:"etag"`
	Size      int64  `json:"size_bytes"`
	CRC64     string `json:"crc64,omitempty"`
	Verified  bool   `json:"crc_verified"`
	Resumed   bool   `json:"resumed,omitempty"`
	Attempts  int    `json:"attempts"`
}

// NewDownloadResult converts a ranged download result.
func NewDownloadResult(bucket, key, localPath string, res *client.DownloadResult) *DownloadResult {
	return &DownloadResult{
		Bucket:    bucket,
		Key:       key,
		LocalPath: localPath,
		ETag:      res.ETag,
		Size:      res.Size,
		CRC64:     res.ServerCRC64,
		Verified:  res.Verified,
		Resumed:   res.Resumed,
		Attempts:  res.Attempts,
	}
}

// ListResult is one or more pages of a listing.
type ListResult struct {
	Bucket    string       `json:"bucket"`
	Prefix    string       `json:"prefix,omitempty"`
	Prefixes  []string     `json:"common_prefixes,omitempty"`
	Items     []ObjectInfo `json:"items"`
	NextToken string       `json:"next_token,omitempty"`
}

// Append adds a listing page.
func (r *ListResult) Append(page *client.ListObjectsV2Result) {
	for _, cp := range page.CommonPrefixes {
		r.Prefixes = append(r.Prefixes, cp.Prefix)
	}
	for i := range page.Contents {
		obj := &page.Contents[i]
		r.Items = append(r.Items, ObjectInfo{
			Key:          obj.Key,
			ETag:         obj.ETag,
			Size:         obj.Size,
			StorageClass: obj.StorageClass,
			LastModified: obj.LastModified,
		})
	}
	r.NextToken = ""
	if page.IsTruncated {
		r.NextToken = page.NextContinuationToken
	}
}

// TotalSize returns the sum of all listed object sizes.
func (r *ListResult) TotalSize() int64 {
	var total int64
	for i := range r.Items {
		total += r.Items[i].Size
	}
	return total
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size_bytes"`
	StorageClass string    `json:"storage_class,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// PresignResult is a shareable URL.
type PresignResult struct {
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Expiration    time.Time         `json:"expiration"`
	SignedHeaders map[string]string `json:"signed_headers,omitempty"`
}

// NewPresignResult converts a presigned request.
func NewPresignResult(res *client.PresignResult) *PresignResult {
	return &PresignResult{
		Method:        res.Method,
		URL:           res.URL,
		Expiration:    res.Expiration,
		SignedHeaders: flattenHeaders(res.SignedHeaders),
	}
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
