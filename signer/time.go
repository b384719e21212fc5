package signer

import (
	"net/http"
	"time"
)

// SigningTime wraps a UTC time.Time with its signing formats cached.
type SigningTime struct {
	time.Time
	timeFormat      string
	shortTimeFormat string
}

// NewSigningTime converts t to UTC.
func NewSigningTime(t time.Time) SigningTime {
	return SigningTime{Time: t.UTC()}
}

// TimeFormat returns the ISO 8601 basic form, e.g. 20231216T162057Z.
func (st *SigningTime) TimeFormat() string {
	if st.timeFormat == "" {
		st.timeFormat = st.Time.Format(TimeFormatV4)
	}
	return st.timeFormat
}

// ShortTimeFormat returns the scope date, e.g. 20231216.
func (st *SigningTime) ShortTimeFormat() string {
	if st.shortTimeFormat == "" {
		st.shortTimeFormat = st.Time.Format(ShortTimeFormatV4)
	}
	return st.shortTimeFormat
}

// HTTPDate returns the RFC 1123 form used by the Date header.
func (st *SigningTime) HTTPDate() string {
	return st.Time.Format(http.TimeFormat)
}
