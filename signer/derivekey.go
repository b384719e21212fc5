package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// DeriveKeyV4 derives the V4 signing key:
//   - k0 = HMAC-SHA256("aliyun_v4" + secret, date)
//   - k1 = HMAC-SHA256(k0, region)
//   - k2 = HMAC-SHA256(k1, product)
//   - key = HMAC-SHA256(k2, "aliyun_v4_request")
func DeriveKeyV4(secret, region, product string, t SigningTime) []byte {
	k := HMACSHA256([]byte(V4SecretPrefix+secret), []byte(t.ShortTimeFormat()))
	k = HMACSHA256(k, []byte(region))
	k = HMACSHA256(k, []byte(product))
	return HMACSHA256(k, []byte(V4RequestTerminator))
}

// HMACSHA256 computes HMAC-SHA256 of data with the given key.
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hmacSHA1Base64(key, data string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func hexHMAC(key []byte, data string) string {
	return hex.EncodeToString(HMACSHA256(key, []byte(data)))
}
