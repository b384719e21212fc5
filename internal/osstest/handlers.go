package osstest

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/crc"
)

type errorDoc struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	RequestID  string   `xml:"RequestId"`
	HostID     string   `xml:"HostId"`
	EC         string   `xml:"EC"`
	ServerTime string   `xml:"ServerTime,omitempty"`
}

// writeError sends an <Error> document. HEAD responses carry it base64
// encoded in x-oss-err instead of a body.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, serverTime time.Time) {
	requestID := newRequestID()
	doc := errorDoc{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		HostID:    r.Host,
		EC:        "0000-00000000",
	}
	if !serverTime.IsZero() {
		doc.ServerTime = serverTime.UTC().Format(time.RFC3339)
	}
	body, _ := xml.Marshal(doc)
	body = append([]byte(xml.Header), body...)

	w.Header().Set(oss.HeaderOSSRequestID, requestID)
	w.Header().Set(oss.HeaderOSSEC, doc.EC)
	w.Header().Set(oss.HeaderContentType, "application/xml")
	if r.Method == http.MethodHead {
		w.Header().Set(oss.HeaderOSSErr, base64.StdEncoding.EncodeToString(body))
		w.WriteHeader(status)
		return
	}
	w.Header().Set(oss.HeaderContentLength, strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeXML(w http.ResponseWriter, v any) {
	body, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(oss.HeaderContentType, "application/xml")
	w.Header().Set(oss.HeaderOSSRequestID, newRequestID())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append([]byte(xml.Header), body...))
}

func newRequestID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func (s *Server) lookup(bucket, key string) (*object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	return obj, ok
}

func (s *Server) setObjectHeaders(w http.ResponseWriter, obj *object) {
	h := w.Header()
	h.Set(oss.HeaderETag, obj.etag)
	h.Set(oss.HeaderContentType, obj.contentType)
	h.Set("Last-Modified", obj.lastModified.Format(http.TimeFormat))
	h.Set(oss.HeaderOSSCRC64, crc.Format(obj.crc))
	h.Set(oss.HeaderOSSObjectType, "Normal")
	h.Set(oss.HeaderOSSRequestID, newRequestID())
	for k, v := range obj.meta {
		h[k] = v
	}
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r)
	obj, ok := s.lookup(bucket, key)
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", time.Time{})
		return
	}
	s.setObjectHeaders(w, obj)
	w.Header().Set(oss.HeaderContentLength, strconv.Itoa(len(obj.data)))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r)
	if key == "" {
		s.handleList(w, r)
		return
	}
	obj, ok := s.lookup(bucket, key)
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", time.Time{})
		return
	}
	if m := r.Header.Get(oss.HeaderIfMatch); m != "" && m != obj.etag {
		writeError(w, r, http.StatusPreconditionFailed, "PreconditionFailed", "At least one of the pre-conditions you specified did not hold.", time.Time{})
		return
	}

	size := int64(len(obj.data))
	start, end, partial, err := parseRange(r.Header.Get(oss.HeaderRange), size)
	if err != nil {
		writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", err.Error(), time.Time{})
		return
	}

	s.setObjectHeaders(w, obj)
	var data []byte
	if size > 0 {
		data = obj.data[start : end+1]
	}
	w.Header().Set(oss.HeaderContentLength, strconv.Itoa(len(data)))
	if partial {
		w.Header().Set(oss.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	s.writeBody(w, r, data)
}

// parseRange handles "bytes=a-b" and "bytes=a-". An unparseable header is
// ignored, as the service does.
func parseRange(header string, size int64) (int64, int64, bool, error) {
	if size == 0 || header == "" {
		return 0, max(size-1, 0), false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, size - 1, false, nil
	}
	a, b, _ := strings.Cut(spec, "-")
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, size - 1, false, nil
	}
	end := size - 1
	if b != "" {
		if end, err = strconv.ParseInt(b, 10, 64); err != nil {
			return 0, size - 1, false, nil
		}
		end = min(end, size-1)
	}
	if start >= size || start > end {
		return 0, 0, false, fmt.Errorf("range %s outside object of %d bytes", header, size)
	}
	return start, end, true, nil
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "IncompleteBody", err.Error(), time.Time{})
		return
	}
	sum := crc.Checksum(data)

	q := r.URL.Query()
	if uploadID := q.Get("uploadId"); uploadID != "" {
		number, err := strconv.Atoi(q.Get("partNumber"))
		if err != nil || number < 1 {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "invalid part number", time.Time{})
			return
		}
		s.mu.Lock()
		up, ok := s.uploads[uploadID]
		if ok {
			up.parts[number] = data
		}
		s.mu.Unlock()
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchUpload", "The specified upload does not exist.", time.Time{})
			return
		}
		w.Header().Set(oss.HeaderETag, partETag(data))
		s.writeUploadCRC(w, sum)
		w.Header().Set(oss.HeaderOSSRequestID, newRequestID())
		w.WriteHeader(http.StatusOK)
		return
	}

	contentType := r.Header.Get(oss.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.mu.Lock()
	obj := s.putLocked(bucket, key, data, contentType, metaHeaders(r.Header))
	s.mu.Unlock()

	w.Header().Set(oss.HeaderETag, obj.etag)
	s.writeUploadCRC(w, sum)
	w.Header().Set(oss.HeaderOSSRequestID, newRequestID())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeUploadCRC(w http.ResponseWriter, sum uint64) {
	if s.takeBadCRC() {
		sum ^= 1
	}
	w.Header().Set(oss.HeaderOSSCRC64, crc.Format(sum))
}

func partETag(data []byte) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, `"%016X"`, crc.Checksum(data))
	return b.String()
}

func metaHeaders(h http.Header) http.Header {
	meta := make(http.Header)
	for k, v := range h {
		if strings.HasPrefix(strings.ToLower(k), "x-oss-meta-") {
			meta[k] = v
		}
	}
	return meta
}

type initiateResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

type completeRequest struct {
	Parts []struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

type completeResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r)
	q := r.URL.Query()

	if q.Has("uploads") {
		id := strings.ReplaceAll(uuid.New().String(), "-", "")
		s.mu.Lock()
		s.uploads[id] = &upload{bucket: bucket, key: key, parts: make(map[int][]byte), header: r.Header.Clone()}
		s.mu.Unlock()
		writeXML(w, initiateResult{Bucket: bucket, Key: key, UploadID: id})
		return
	}

	uploadID := q.Get("uploadId")
	if uploadID == "" {
		writeError(w, r, http.StatusBadRequest, "InvalidArgument", "unsupported POST", time.Time{})
		return
	}
	var req completeRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "MalformedXML", err.Error(), time.Time{})
		return
	}

	s.mu.Lock()
	up, ok := s.uploads[uploadID]
	if !ok {
		s.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "NoSuchUpload", "The specified upload does not exist.", time.Time{})
		return
	}
	numbers := make([]int, 0, len(req.Parts))
	for _, p := range req.Parts {
		numbers = append(numbers, p.PartNumber)
	}
	if !sort.IntsAreSorted(numbers) {
		s.mu.Unlock()
		writeError(w, r, http.StatusBadRequest, "InvalidPartOrder", "parts must be in ascending order", time.Time{})
		return
	}
	var data []byte
	for _, p := range req.Parts {
		part, ok := up.parts[p.PartNumber]
		if !ok || partETag(part) != p.ETag {
			s.mu.Unlock()
			writeError(w, r, http.StatusBadRequest, "InvalidPart", fmt.Sprintf("part %d not found", p.PartNumber), time.Time{})
			return
		}
		data = append(data, part...)
	}
	contentType := up.header.Get(oss.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj := s.putLocked(up.bucket, up.key, data, contentType, metaHeaders(up.header))
	delete(s.uploads, uploadID)
	s.mu.Unlock()

	s.writeUploadCRC(w, obj.crc)
	writeXML(w, completeResult{Location: "/" + bucket + "/" + key, Bucket: bucket, Key: key, ETag: obj.etag})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r)
	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		s.mu.Lock()
		_, ok := s.uploads[uploadID]
		delete(s.uploads, uploadID)
		s.mu.Unlock()
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchUpload", "The specified upload does not exist.", time.Time{})
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mu.Lock()
	delete(s.buckets[bucket], key)
	s.mu.Unlock()
	w.Header().Set(oss.HeaderOSSRequestID, newRequestID())
	w.WriteHeader(http.StatusNoContent)
}

type listContents struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Type         string `xml:"Type"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type listPrefix struct {
	Prefix string `xml:"Prefix"`
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	MaxKeys               int            `xml:"MaxKeys"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	EncodingType          string         `xml:"EncodingType,omitempty"`
	IsTruncated           bool           `xml:"IsTruncated"`
	KeyCount              int            `xml:"KeyCount"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []listContents `xml:"Contents"`
	CommonPrefixes        []listPrefix   `xml:"CommonPrefixes"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if bucket == "" {
		bucket, _ = splitPath(r)
	}
	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	maxKeys := 100
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = min(n, 1000)
		}
	}
	after := q.Get("start-after")
	if token := q.Get("continuation-token"); token != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "invalid continuation token", time.Time{})
			return
		}
		after = string(decoded)
	}

	s.mu.Lock()
	objects, ok := s.buckets[bucket]
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist.", time.Time{})
		return
	}
	slices.Sort(keys)

	encode := func(v string) string { return v }
	if q.Get("encoding-type") == "url" {
		encode = url.QueryEscape
	}

	res := listResult{
		Name:              bucket,
		Prefix:            encode(prefix),
		StartAfter:        encode(q.Get("start-after")),
		MaxKeys:           maxKeys,
		Delimiter:         encode(delimiter),
		EncodingType:      q.Get("encoding-type"),
		ContinuationToken: q.Get("continuation-token"),
	}
	seenPrefix := make(map[string]bool)
	last := ""
	for _, k := range keys {
		if k <= after || !strings.HasPrefix(k, prefix) {
			continue
		}
		cp := ""
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				cp = k[:len(prefix)+i+len(delimiter)]
			}
		}
		if cp != "" && seenPrefix[cp] {
			last = k
			continue
		}
		if res.KeyCount == maxKeys {
			res.IsTruncated = true
			res.NextContinuationToken = base64.RawURLEncoding.EncodeToString([]byte(last))
			break
		}
		if cp != "" {
			seenPrefix[cp] = true
			res.CommonPrefixes = append(res.CommonPrefixes, listPrefix{Prefix: encode(cp)})
			res.KeyCount++
			last = k
			continue
		}
		obj, _ := s.lookup(bucket, k)
		if obj == nil {
			continue
		}
		res.Contents = append(res.Contents, listContents{
			Key:          encode(k),
			LastModified: obj.lastModified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         obj.etag,
			Type:         "Normal",
			Size:         int64(len(obj.data)),
			StorageClass: "Standard",
		})
		res.KeyCount++
		last = k
	}
	writeXML(w, res)
}
