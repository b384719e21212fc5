package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/clientcli"
)

var (
	lsAll       bool
	lsMaxKeys   int
	lsDelimiter string
	lsToken     string
)

var lsCmd = &cobra.Command{
	Use:   "ls <bucket> [prefix]",
	Short: "List objects",
	Long: `List objects in a bucket, optionally under a prefix.

By default one page is printed; --all follows continuation tokens until
the listing is complete. With --delimiter, keys sharing a prefix up to the
delimiter are rolled up into a single directory entry.

Examples:
  ossctl ls my-bucket
  ossctl ls my-bucket logs/2024/ --delimiter /
  ossctl ls my-bucket --all --json
  ossctl ls my-bucket --max-keys 100 --continuation-token <token>`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "list every page")
	lsCmd.Flags().IntVar(&lsMaxKeys, "max-keys", 0, "objects per page, 1-1000 (default: service default)")
	lsCmd.Flags().StringVarP(&lsDelimiter, "delimiter", "d", "", "group keys by this delimiter")
	lsCmd.Flags().StringVar(&lsToken, "continuation-token", "", "resume a listing from a previous page")
}

func runLs(cmd *cobra.Command, args []string) error {
	req := &client.ListObjectsV2Request{
		Bucket:            args[0],
		Delimiter:         lsDelimiter,
		ContinuationToken: lsToken,
		MaxKeys:           lsMaxKeys,
	}
	if len(args) > 1 {
		req.Prefix = args[1]
	}

	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.close()

	result := &clientcli.ListResult{Bucket: req.Bucket, Prefix: req.Prefix, Items: []clientcli.ObjectInfo{}}

	p := s.client.NewListObjectsV2Paginator(req)
	for p.HasNext() {
		page, err := p.NextPage(cmd.Context())
		if err != nil {
			return err
		}
		result.Append(page)
		if !lsAll {
			break
		}
	}

	return getFormatter().FormatList(cmd.OutOrStdout(), result)
}
