// Package oss holds the shared types of an Object Storage Service client core:
// credentials, the generic operation envelope consumed by the execution
// pipeline, wire header names and the structured error type.
//
// The signing and execution machinery lives in sub packages:
//
//   - signer: legacy (OSS) and V4 (OSS4-HMAC-SHA256) request signing, in
//     header or query (presigned URL) placement
//   - retry: retryability classifiers, backoff delayers and retryers
//   - stream: bounded (sub-range) and tracking (tee) readers
//   - crc: streaming CRC-64/ECMA accumulator with combine support
//   - transport: HTTP client with connect and read/write deadlines
//   - client: the execution pipeline, presigning, ranged downloads and
//     multipart uploads
//   - paginator: single-use, cursor-following page iteration
//
// # Errors
//
// Every error produced by the core is an *Error carrying a Kind. Callers can
// test kinds with errors.Is against the package sentinels:
//
//	out, err := c.Execute(ctx, input)
//	if errors.Is(err, oss.ErrIntegrity) {
//	    // checksum mismatch after all attempts
//	}
//
// and read service details with errors.As:
//
//	var e *oss.Error
//	if errors.As(err, &e) && e.Kind == oss.KindService {
//	    log.Println(e.StatusCode, e.Code, e.RequestID)
//	}
package oss
