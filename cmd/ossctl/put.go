package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/clientcli"
	"github.com/sagarc03/oss/filesystem"
)

var (
	putPartSize    int64
	putParallel    int
	putContentType string
)

var putCmd = &cobra.Command{
	Use:   "put <bucket> <key> <file>",
	Short: "Upload a file",
	Long: `Upload a local file as an object.

Files no larger than --part-size are sent in one request. Larger files
use a multipart upload with --parallel concurrent parts; each part is
checked against the service's CRC-64 and resent on mismatch. A failed
upload is aborted so no parts are left behind.

The content type is detected from the file extension unless
--content-type is given.

Examples:
  ossctl put my-bucket notes.txt ./notes.txt
  ossctl put my-bucket backups/db.tar.gz ./db.tar.gz --part-size 16777216 --parallel 8
  ossctl put --json my-bucket data.bin ./data.bin --content-type application/octet-stream`,
	Args: cobra.ExactArgs(3),
	RunE: runPut,
}

func init() {
	putCmd.Flags().Int64Var(&putPartSize, "part-size", client.DefaultPartSize, "bytes per part")
	putCmd.Flags().IntVar(&putParallel, "parallel", client.DefaultParallel, "concurrent part uploads")
	putCmd.Flags().StringVar(&putContentType, "content-type", "", "content type (default: detected from extension)")
}

func runPut(cmd *cobra.Command, args []string) error {
	bucket, key, localPath := args[0], args[1], args[2]

	src, err := filesystem.Open(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.close()

	contentType := src.ContentType
	if putContentType != "" {
		contentType = putContentType
	}

	var result clientcli.UploadResult
	if src.Size <= putPartSize {
		res, err := s.client.PutObject(cmd.Context(), &client.PutObjectRequest{
			Bucket:        bucket,
			Key:           key,
			Body:          src,
			ContentLength: src.Size,
			ContentType:   contentType,
		})
		if err != nil {
			return err
		}
		result = clientcli.UploadResult{
			LocalPath: localPath,
			Bucket:    bucket,
			Key:       key,
			ETag:      res.ETag,
			Size:      src.Size,
			Parts:     1,
			CRC64:     res.CRC64,
			Verified:  res.Verified,
		}
	} else {
		res, err := s.client.Upload(cmd.Context(), bucket, key, src, src.Size, func(o *client.UploadOptions) {
			o.PartSize = putPartSize
			o.Parallel = putParallel
			o.ContentType = contentType
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", localPath, err)
		}
		result = clientcli.NewUploadResult(localPath, bucket, key, res)
	}

	return getFormatter().FormatUpload(cmd.OutOrStdout(), result)
}
