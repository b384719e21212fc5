// Package clientcli renders ossctl results for a terminal or for scripts.
//
// Results from the client package are converted into flat, JSON-tagged
// types and written by a Formatter:
//
//	res, err := c.DownloadFile(ctx, bucket, key, path)
//	if err != nil {
//		return err
//	}
//	formatter := clientcli.NewFormatter(jsonOutput, quiet)
//	formatter.FormatDownload(os.Stdout, clientcli.NewDownloadResult(bucket, key, path, res))
//
// HumanFormatter prints aligned text and masks secrets; JSONFormatter
// prints indented JSON suitable for jq.
package clientcli
