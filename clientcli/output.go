package clientcli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sagarc03/oss/credentials"
)

// Formatter formats results for output.
type Formatter interface {
	FormatUpload(w io.Writer, result UploadResult) error
	FormatDownload(w io.Writer, result *DownloadResult) error
	FormatList(w io.Writer, result *ListResult) error
	FormatPresign(w io.Writer, result *PresignResult) error
	FormatError(w io.Writer, err error) error
	FormatProfileList(w io.Writer, profiles []credentials.ProfileEntry, defaultName string, showSecrets bool) error
	FormatProfileShow(w io.Writer, profile credentials.ProfileEntry, isDefault, showSecrets bool) error
}

// NewFormatter returns the appropriate formatter based on flags.
func NewFormatter(jsonOutput, quiet bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
}

// FormatUpload formats an upload result as human-readable text.
func (f *HumanFormatter) FormatUpload(w io.Writer, r UploadResult) error {
	if r.Err != nil {
		_, _ = fmt.Fprintf(w, "Error: %s - %v\n", r.LocalPath, r.Err)
		return nil
	}
	if f.Quiet {
		return nil
	}
	_, _ = fmt.Fprintf(w, "Uploaded: %s -> oss://%s/%s (%s)\n", r.LocalPath, r.Bucket, r.Key, formatSize(r.Size))
	_, _ = fmt.Fprintf(w, "  ETag:  %s\n", r.ETag)
	if r.Parts > 1 {
		_, _ = fmt.Fprintf(w, "  Parts: %d\n", r.Parts)
	}
	_, _ = fmt.Fprintf(w, "  CRC64: %s\n", crcStatus(r.CRC64, r.Verified))
	return nil
}

// FormatDownload formats a download result as human-readable text.
func (f *HumanFormatter) FormatDownload(w io.Writer, r *DownloadResult) error {
	if f.Quiet {
		return nil
	}
	src := "oss://" + r.Bucket + "/" + r.Key
	if r.LocalPath == "-" {
		_, _ = fmt.Fprintf(w, "Downloaded: %s (%s)\n", src, formatSize(r.Size))
	} else {
		_, _ = fmt.Fprintf(w, "Downloaded: %s -> %s (%s)\n", src, r.LocalPath, formatSize(r.Size))
	}
	_, _ = fmt.Fprintf(w, "  ETag:  %s\n", r.ETag)
	_, _ = fmt.Fprintf(w, "  CRC64: %s\n", crcStatus(r.CRC64, r.Verified))
	if r.Resumed {
		_, _ = fmt.Fprintln(w, "  Resumed from checkpoint")
	}
	return nil
}

// FormatList formats list results as human-readable text.
func (f *HumanFormatter) FormatList(w io.Writer, result *ListResult) error {
	if len(result.Items) == 0 && len(result.Prefixes) == 0 {
		_, _ = fmt.Fprintln(w, "No objects found")
		return nil
	}

	// Calculate column widths
	maxKeyLen := 3 // "KEY"
	for i := range result.Items {
		maxKeyLen = max(maxKeyLen, len(result.Items[i].Key))
	}
	for _, p := range result.Prefixes {
		maxKeyLen = max(maxKeyLen, len(p))
	}
	maxKeyLen = min(maxKeyLen, 60)

	// Print header
	_, _ = fmt.Fprintf(w, "%-*s  %10s  %s\n", maxKeyLen, "KEY", "SIZE", "LAST MODIFIED")
	_, _ = fmt.Fprintf(w, "%s  %s  %s\n", strings.Repeat("-", maxKeyLen), strings.Repeat("-", 10), strings.Repeat("-", 19))

	for _, p := range result.Prefixes {
		_, _ = fmt.Fprintf(w, "%-*s  %10s\n", maxKeyLen, truncate(p, maxKeyLen), "DIR")
	}
	for i := range result.Items {
		item := &result.Items[i]
		_, _ = fmt.Fprintf(w, "%-*s  %10s  %s\n",
			maxKeyLen,
			truncate(item.Key, maxKeyLen),
			formatSize(item.Size),
			item.LastModified.UTC().Format("2006-01-02 15:04:05"),
		)
	}

	if !f.Quiet {
		_, _ = fmt.Fprintf(w, "\n%d object(s) (%s total)\n", len(result.Items), formatSize(result.TotalSize()))
		if result.NextToken != "" {
			_, _ = fmt.Fprintf(w, "Next page: use --continuation-token %q\n", result.NextToken)
		}
	}
	return nil
}

// FormatPresign formats a presigned URL. In quiet mode only the URL is
// printed.
func (f *HumanFormatter) FormatPresign(w io.Writer, r *PresignResult) error {
	_, _ = fmt.Fprintln(w, r.URL)
	if f.Quiet {
		return nil
	}
	_, _ = fmt.Fprintf(w, "  Method:  %s\n", r.Method)
	_, _ = fmt.Fprintf(w, "  Expires: %s\n", r.Expiration.UTC().Format(time.RFC3339))
	if len(r.SignedHeaders) > 0 {
		_, _ = fmt.Fprintln(w, "  Send these headers unchanged:")
		for _, k := range slices.Sorted(maps.Keys(r.SignedHeaders)) {
			_, _ = fmt.Fprintf(w, "    %s: %s\n", k, r.SignedHeaders[k])
		}
	}
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// FormatProfileList formats a list of profiles as human-readable text.
func (f *HumanFormatter) FormatProfileList(w io.Writer, profiles []credentials.ProfileEntry, defaultName string, showSecrets bool) error {
	// Calculate column widths
	maxNameLen := 4     // "NAME"
	maxEndpointLen := 8 // "ENDPOINT"
	for i := range profiles {
		maxNameLen = max(maxNameLen, len(profiles[i].Name))
		maxEndpointLen = max(maxEndpointLen, len(profileEndpoint(&profiles[i])))
	}
	maxNameLen = min(maxNameLen, 20)
	maxEndpointLen = min(maxEndpointLen, 50)

	// Print header
	_, _ = fmt.Fprintf(w, "  %-*s  %-*s  %s\n", maxNameLen, "NAME", maxEndpointLen, "ENDPOINT", "ACCESS KEY")
	_, _ = fmt.Fprintf(w, "  %s  %s  %s\n", strings.Repeat("-", maxNameLen), strings.Repeat("-", maxEndpointLen), strings.Repeat("-", 20))

	for i := range profiles {
		p := &profiles[i]
		marker := " "
		if p.Name == defaultName {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %-*s  %-*s  %s\n",
			marker,
			maxNameLen, truncate(p.Name, maxNameLen),
			maxEndpointLen, truncate(profileEndpoint(p), maxEndpointLen),
			maskSecret(p.AccessKeyID, showSecrets),
		)
	}

	return nil
}

// FormatProfileShow formats a single profile as human-readable text.
func (f *HumanFormatter) FormatProfileShow(w io.Writer, profile credentials.ProfileEntry, isDefault, showSecrets bool) error {
	_, _ = fmt.Fprintf(w, "Name:       %s", profile.Name)
	if isDefault {
		_, _ = fmt.Fprintf(w, " (default)")
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Region:     %s\n", orNotSet(profile.Region))
	_, _ = fmt.Fprintf(w, "Endpoint:   %s\n", profileEndpoint(&profile))
	_, _ = fmt.Fprintf(w, "Access Key: %s\n", maskSecret(profile.AccessKeyID, showSecrets))
	_, _ = fmt.Fprintf(w, "Secret Key: %s\n", maskSecret(profile.AccessKeySecret, showSecrets))
	if profile.SecurityToken != "" {
		_, _ = fmt.Fprintf(w, "Token:      %s\n", maskSecret(profile.SecurityToken, showSecrets))
	}
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatUpload formats an upload result as JSON.
func (f *JSONFormatter) FormatUpload(w io.Writer, r UploadResult) error {
	// Convert the error to a string for JSON output
	output := struct {
		UploadResult
		Error string `json:"error,omitempty"`
	}{UploadResult: r}
	if r.Err != nil {
		output.Error = r.Err.Error()
	}
	return writeJSON(w, output)
}

// FormatDownload formats a download result as JSON.
func (f *JSONFormatter) FormatDownload(w io.Writer, result *DownloadResult) error {
	return writeJSON(w, result)
}

// FormatList formats list results as JSON.
func (f *JSONFormatter) FormatList(w io.Writer, result *ListResult) error {
	if result.Items == nil {
		result.Items = []ObjectInfo{}
	}
	return writeJSON(w, result)
}

// FormatPresign formats a presigned URL as JSON.
func (f *JSONFormatter) FormatPresign(w io.Writer, result *PresignResult) error {
	return writeJSON(w, result)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

type jsonProfile struct {
	Name      string `json:"name"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Default   bool   `json:"default"`
}

func newJSONProfile(p *credentials.ProfileEntry, isDefault, showSecrets bool) jsonProfile {
	return jsonProfile{
		Name:      p.Name,
		Region:    p.Region,
		Endpoint:  profileEndpoint(p),
		AccessKey: maskSecret(p.AccessKeyID, showSecrets),
		SecretKey: maskSecret(p.AccessKeySecret, showSecrets),
		Default:   isDefault,
	}
}

// FormatProfileList formats a list of profiles as JSON.
func (f *JSONFormatter) FormatProfileList(w io.Writer, profiles []credentials.ProfileEntry, defaultName string, showSecrets bool) error {
	output := struct {
		Profiles []jsonProfile `json:"profiles"`
	}{
		Profiles: make([]jsonProfile, len(profiles)),
	}
	for i := range profiles {
		output.Profiles[i] = newJSONProfile(&profiles[i], profiles[i].Name == defaultName, showSecrets)
	}
	return writeJSON(w, output)
}

// FormatProfileShow formats a single profile as JSON.
func (f *JSONFormatter) FormatProfileShow(w io.Writer, profile credentials.ProfileEntry, isDefault, showSecrets bool) error {
	return writeJSON(w, newJSONProfile(&profile, isDefault, showSecrets))
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func crcStatus(value string, verified bool) string {
	switch {
	case value == "":
		return "(not checked)"
	case verified:
		return value + " (verified)"
	default:
		return value + " (not verified)"
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// profileEndpoint shows the explicit endpoint or the one derived from the
// region.
func profileEndpoint(p *credentials.ProfileEntry) string {
	switch {
	case p.Endpoint != "":
		return p.Endpoint
	case p.Region != "":
		return "https://oss-" + p.Region + ".aliyuncs.com"
	default:
		return "(not set)"
	}
}

// maskSecret masks a secret string, showing only first 4 and last 4 characters.
// If showSecrets is true, returns the original value.
// If the secret is too short, returns all asterisks.
func maskSecret(secret string, showSecrets bool) string {
	if showSecrets {
		return secret
	}
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
