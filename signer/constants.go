package signer

import "time"

// Signature constants shared by both schemes.
const (
	// SigningAlgorithmV4 identifies the V4 scheme in headers and query strings.
	SigningAlgorithmV4 = "OSS4-HMAC-SHA256"

	// AuthorizationPrefixV1 prefixes the legacy Authorization header value.
	AuthorizationPrefixV1 = "OSS"

	// V4SecretPrefix is prepended to the secret before the first HMAC round.
	V4SecretPrefix = "aliyun_v4"

	// V4RequestTerminator closes the V4 credential scope.
	V4RequestTerminator = "aliyun_v4_request"

	// TimeFormatV4 is the ISO8601 basic format used by x-oss-date.
	// Format: YYYYMMDDTHHMMSSZ
	TimeFormatV4 = "20060102T150405Z"

	// ShortTimeFormatV4 is the date used in the credential scope.
	// Format: YYYYMMDD
	ShortTimeFormatV4 = "20060102"

	// MaxPresignExpires is the longest validity accepted for V4 presigned URLs.
	MaxPresignExpires = 7 * 24 * time.Hour
)

// Query parameter names.
const (
	QueryV1AccessKeyID   = "OSSAccessKeyId"
	QueryV1Expires       = "Expires"
	QueryV1Signature     = "Signature"
	QueryV1SecurityToken = "security-token"

	QueryV4SignatureVersion  = "x-oss-signature-version"
	QueryV4Date              = "x-oss-date"
	QueryV4Expires           = "x-oss-expires"
	QueryV4Credential        = "x-oss-credential"
	QueryV4AdditionalHeaders = "x-oss-additional-headers"
	QueryV4SecurityToken     = "x-oss-security-token"
	QueryV4Signature         = "x-oss-signature"
)
