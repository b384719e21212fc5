package osstest

import (
	"net/http"
	"time"
)

// faultSet counts the faults still queued. Each counter is consumed by the
// next matching response.
type faultSet struct {
	fail       int
	failStatus int
	failCode   string

	corrupt int
	cut     int
	cutAt   int64
	badCRC  int

	stall    int
	stallFor time.Duration
}

// FailNext answers the next n requests of any kind with status and code.
func (s *Server) FailNext(n, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.fail, s.faults.failStatus, s.faults.failCode = n, status, code
}

// CorruptBody flips one byte in each of the next n object bodies. Headers,
// including the CRC-64, still describe the stored object.
func (s *Server) CorruptBody(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.corrupt = n
}

// CutBody aborts each of the next n object bodies after at bytes, leaving
// the client with a short read.
func (s *Server) CutBody(n int, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.cut, s.faults.cutAt = n, at
}

// CorruptCRC reports a wrong CRC-64 for each of the next n uploads.
func (s *Server) CorruptCRC(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.badCRC = n
}

// StallNext holds each of the next n requests for d and then answers 503, so
// a client with a shorter read timeout gives up waiting for the response.
// A stalled request never reaches its handler.
func (s *Server) StallNext(n int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.stall, s.faults.stallFor = n, d
}

func (s *Server) takeStall() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.stall == 0 {
		return 0, false
	}
	s.faults.stall--
	return s.faults.stallFor, true
}

func (s *Server) takeFail() (int, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.fail == 0 {
		return 0, "", false
	}
	s.faults.fail--
	return s.faults.failStatus, s.faults.failCode, true
}

func (s *Server) takeCorrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.corrupt == 0 {
		return false
	}
	s.faults.corrupt--
	return true
}

func (s *Server) takeCut() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.cut == 0 {
		return 0, false
	}
	s.faults.cut--
	return s.faults.cutAt, true
}

func (s *Server) takeBadCRC() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.badCRC == 0 {
		return false
	}
	s.faults.badCRC--
	return true
}

func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d, ok := s.takeStall(); ok {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-r.Context().Done():
				return
			}
			// The client has given up on this request by now
			writeError(w, r, http.StatusServiceUnavailable, "ServiceUnavailable", "stalled", time.Time{})
			return
		}
		if status, code, ok := s.takeFail(); ok {
			writeError(w, r, status, code, "injected fault", time.Time{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeBody sends data with any queued corruption or cut applied.
func (s *Server) writeBody(w http.ResponseWriter, r *http.Request, data []byte) {
	if r.Method == http.MethodHead {
		return
	}
	if len(data) > 0 && s.takeCorrupt() {
		data = append([]byte(nil), data...)
		data[len(data)/2] ^= 0xff
	}
	if at, ok := s.takeCut(); ok && at < int64(len(data)) {
		_, _ = w.Write(data[:at])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	_, _ = w.Write(data)
}
