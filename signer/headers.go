package signer

import "strings"

// Rule decides whether a header or parameter name takes part in signing.
type Rule interface {
	IsValid(value string) bool
}

// Rules is satisfied when any of its rules is.
type Rules []Rule

// IsValid returns true if any rule in the slice validates the value.
func (r Rules) IsValid(value string) bool {
	for _, rule := range r {
		if rule.IsValid(value) {
			return true
		}
	}
	return false
}

// MapRule matches exact names.
type MapRule map[string]struct{}

// IsValid returns true if the value exists in the map.
func (m MapRule) IsValid(value string) bool {
	_, ok := m[value]
	return ok
}

// Patterns matches names by case-insensitive prefix.
type Patterns []string

// IsValid returns true if value has any of the pattern prefixes.
func (p Patterns) IsValid(value string) bool {
	for _, pattern := range p {
		if strings.HasPrefix(strings.ToLower(value), strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// DefaultSignedHeaders lists the lowercase headers V4 always signs when
// present.
var DefaultSignedHeaders = Rules{
	MapRule{
		"content-type": struct{}{},
		"content-md5":  struct{}{},
	},
	Patterns{"x-oss-"},
}

// SignedParameters lists the query parameters the legacy scheme puts into the
// canonicalized resource. The set mirrors the live service API surface and
// must be kept in sync with it.
var SignedParameters = Rules{
	MapRule{
		"acl":                          struct{}{},
		"append":                       struct{}{},
		"bucketInfo":                   struct{}{},
		"callback":                     struct{}{},
		"callback-var":                 struct{}{},
		"cname":                        struct{}{},
		"comp":                         struct{}{},
		"continuation-token":           struct{}{},
		"cors":                         struct{}{},
		"delete":                       struct{}{},
		"encryption":                   struct{}{},
		"lifecycle":                    struct{}{},
		"live":                         struct{}{},
		"location":                     struct{}{},
		"logging":                      struct{}{},
		"objectMeta":                   struct{}{},
		"partNumber":                   struct{}{},
		"policy":                       struct{}{},
		"position":                     struct{}{},
		"qos":                          struct{}{},
		"referer":                      struct{}{},
		"regionList":                   struct{}{},
		"replication":                  struct{}{},
		"requestPayment":               struct{}{},
		"response-cache-control":       struct{}{},
		"response-content-disposition": struct{}{},
		"response-content-encoding":    struct{}{},
		"response-content-language":    struct{}{},
		"response-content-type":        struct{}{},
		"response-expires":             struct{}{},
		"restore":                      struct{}{},
		"security-token":               struct{}{},
		"sequential":                   struct{}{},
		"stat":                         struct{}{},
		"symlink":                      struct{}{},
		"tagging":                      struct{}{},
		"uploadId":                     struct{}{},
		"uploads":                      struct{}{},
		"versionId":                    struct{}{},
		"versioning":                   struct{}{},
		"versions":                     struct{}{},
		"website":                      struct{}{},
		"worm":                         struct{}{},
		"wormExtend":                   struct{}{},
		"wormId":                       struct{}{},
	},
	Patterns{"x-oss-"},
}

// lowerHeaders groups request headers by lowercase name, keeping value order.
// Both canonical (Go style) and raw map keys end up in the same bucket.
func lowerHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		lk := strings.ToLower(k)
		out[lk] = append(out[lk], v...)
	}
	return out
}

// joinTrimmed trims each value and joins them with commas.
func joinTrimmed(values []string) string {
	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
	}
	return strings.Join(trimmed, ",")
}

func firstValue(h map[string][]string, lowerKey string) string {
	if v := h[lowerKey]; len(v) > 0 {
		return v[0]
	}
	return ""
}
