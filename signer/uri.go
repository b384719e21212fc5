package signer

import (
	"net/url"
	"sort"
	"strings"
)

const upperHex = "0123456789ABCDEF"

func shouldEscape(c byte, keepSlash bool) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return false
	case c == '-', c == '_', c == '.', c == '~':
		return false
	case c == '/':
		return !keepSlash
	}
	return true
}

// EscapePath percent-encodes s with the RFC 3986 unreserved set, leaving '/'
// untouched when keepSlash is set.
func EscapePath(s string, keepSlash bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i], keepSlash) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c, keepSlash) {
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&15])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// queryParam is one decoded query pair. Keys without '=' have an empty value.
type queryParam struct {
	key   string
	value string
}

// parseRawQuery splits a raw query into decoded pairs in their original
// order. Undecodable components are kept verbatim.
func parseRawQuery(raw string) []queryParam {
	if raw == "" {
		return nil
	}
	var params []queryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		params = append(params, queryParam{key: unescape(k), value: unescape(v)})
	}
	return params
}

func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

// encodeQuery renders params sorted by their decoded key, then escapes each
// key and value individually. Later duplicates replace earlier ones.
func encodeQuery(params []queryParam) string {
	values := make(map[string]string, len(params))
	for _, p := range params {
		values[p.key] = p.value
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(EscapePath(k, false))
		if v := values[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(EscapePath(v, false))
		}
	}
	return b.String()
}
