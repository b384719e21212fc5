package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/clientcli"
)

var (
	presignMethod      string
	presignExpires     time.Duration
	presignContentType string
)

var presignCmd = &cobra.Command{
	Use:   "presign <bucket> <key>",
	Short: "Create a presigned URL",
	Long: `Create a URL that grants one request on an object without credentials.

The URL is signed locally; nothing is sent to the service. V4 URLs are
valid for at most seven days.

Examples:
  ossctl presign my-bucket reports/2024.csv
  ossctl presign my-bucket upload.bin --method PUT --content-type application/octet-stream
  ossctl presign -q my-bucket video.mp4 --expires 2h | xargs curl -O`,
	Args: cobra.ExactArgs(2),
	RunE: runPresign,
}

func init() {
	presignCmd.Flags().StringVarP(&presignMethod, "method", "m", http.MethodGet, "HTTP method the URL is valid for")
	presignCmd.Flags().DurationVarP(&presignExpires, "expires", "e", oss.DefaultPresignExpires, "validity period")
	presignCmd.Flags().StringVar(&presignContentType, "content-type", "", "content type the request must send (signed)")
}

func runPresign(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.close()

	in := &oss.OperationInput{
		OpName: "Object",
		Method: strings.ToUpper(presignMethod),
		Bucket: args[0],
		Key:    args[1],
	}
	if presignContentType != "" {
		in.Header().Set(oss.HeaderContentType, presignContentType)
	}

	res, err := s.client.Presign(cmd.Context(), in, time.Now().Add(presignExpires))
	if err != nil {
		return err
	}
	return getFormatter().FormatPresign(cmd.OutOrStdout(), clientcli.NewPresignResult(res))
}
