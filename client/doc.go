// Package client executes signed OSS operations.
//
// Every call goes through Execute: the request is built from an
// oss.OperationInput, signed with the configured V1 or V4 signer and sent.
// Failed attempts are retried under a retry.Retryer with the body rewound to
// its start, a skewed clock is corrected from the server's time, and the
// CRC-64 the service reports is compared with what was sent.
//
// # Basic Usage
//
//	c, err := client.New(client.Config{
//		Region: "cn-hangzhou",
//	}, client.WithCredentialsProvider(credentials.Static(ak, sk, "")))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := c.GetObject(ctx, &client.GetObjectRequest{Bucket: "b", Key: "k"})
//
// # Transfers
//
// Download fetches large objects as parallel ranges pinned to one ETag and
// verifies the combined CRC-64. DownloadFile writes through a temporary
// file and, with WithCheckpointStore, resumes an interrupted transfer.
// Upload sends a multipart upload whose parts are bounded windows over the
// source, aborting it on failure.
//
// # Presigning
//
// Presign and PresignObject produce query-signed URLs without sending
// anything.
//
// # Configuration
//
// NewFromConfig builds a client from a config.Config loaded with viper.
package client
