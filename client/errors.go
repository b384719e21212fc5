package client

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sagarc03/oss"
)

// Errors for client configuration.
var (
	ErrEndpointRequired        = errors.New("endpoint or region is required")
	ErrRegionRequired          = errors.New("region is required for v4 signing")
	ErrInvalidEndpoint         = errors.New("invalid endpoint")
	ErrUnknownSignatureVersion = errors.New("unknown signature version")
	ErrConfigRequired          = errors.New("config is required")
)

// Errors for input validation.
var (
	ErrBucketRequired   = errors.New("bucket is required")
	ErrKeyRequired      = errors.New("key is required")
	ErrMethodRequired   = errors.New("method is required")
	ErrInvalidPartSize  = errors.New("part size out of range")
	ErrNoCheckpointPath = errors.New("checkpoint requires a destination path")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// serviceErrorXML is the <Error> document returned with non-2xx responses.
type serviceErrorXML struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	RequestID  string   `xml:"RequestId"`
	HostID     string   `xml:"HostId"`
	EC         string   `xml:"EC"`
	ServerTime string   `xml:"ServerTime"`
}

// serviceError turns a non-2xx response into a KindService error and
// closes its body. It also returns the server clock when the response
// carried one, for skew correction.
func serviceError(op string, resp *http.Response) (*oss.Error, time.Time) {
	defer func() { _ = resp.Body.Close() }()

	e := &oss.Error{
		Kind:       oss.KindService,
		Op:         op,
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(oss.HeaderOSSRequestID),
		EC:         resp.Header.Get(oss.HeaderOSSEC),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		// HEAD responses carry the error document base64 encoded in a header.
		if encoded := resp.Header.Get(oss.HeaderOSSErr); encoded != "" {
			body, _ = base64.StdEncoding.DecodeString(encoded)
		}
	}

	var doc serviceErrorXML
	if len(body) > 0 {
		if err := xml.Unmarshal(body, &doc); err != nil {
			e.Code = "BadErrorResponse"
			e.Message = strings.TrimSpace(string(body))
		}
	}

	if doc.Code != "" {
		e.Code = doc.Code
	}
	if doc.Message != "" {
		e.Message = doc.Message
	}
	if e.RequestID == "" {
		e.RequestID = doc.RequestID
	}
	if e.EC == "" {
		e.EC = doc.EC
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}

	return e, serverTime(doc.ServerTime, resp.Header.Get(oss.HeaderDate))
}

func serverTime(fromBody, dateHeader string) time.Time {
	if fromBody != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z"} {
			if t, err := time.Parse(layout, fromBody); err == nil {
				return t
			}
		}
	}
	if dateHeader != "" {
		if t, err := http.ParseTime(dateHeader); err == nil {
			return t
		}
	}
	return time.Time{}
}
