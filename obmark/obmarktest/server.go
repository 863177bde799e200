// Package obmarktest runs an in-memory S3 compatible server for tests.
package obmarktest

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Request is what the server saw of one call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server answers path-style bucket listings and object GET/PUT calls.
// Requests without an Authorization header are rejected with 403.
type Server struct {
	*httptest.Server

	// PageSize caps the number of keys per listing page. Zero means max-keys.
	PageSize int

	// Status overrides the response status of object calls when it returns non-zero.
	Status func(r *Request) int

	mu       sync.Mutex
	order    []string
	buckets  map[string]map[string][]byte
	requests []*Request
}

func NewServer() *Server {
	s := &Server{buckets: make(map[string]map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) AddBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; ok {
		return
	}
	s.order = append(s.order, name)
	s.buckets[name] = make(map[string][]byte)
}

// AddObject stores an object, creating the bucket when needed.
func (s *Server) AddObject(bucket, key string, body []byte) {
	s.AddBucket(bucket)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket][key] = body
}

// Keys returns the sorted keys stored in bucket.
func (s *Server) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.buckets[bucket])
}

func (s *Server) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.requests...)
}

// Count returns how many requests with method were received.
func (s *Server) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := &Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusForbidden, "AccessDenied")
		return
	}

	bucket, key := splitPath(r.URL.Path)
	switch {
	case bucket == "" && r.Method == http.MethodGet:
		s.listBuckets(w)
	case key == "" && r.Method == http.MethodGet:
		s.listObjects(w, bucket, req.Query)
	case key != "" && (r.Method == http.MethodGet || r.Method == http.MethodPut):
		if s.Status != nil {
			if status := s.Status(req); status != 0 {
				w.WriteHeader(status)
				return
			}
		}
		if r.Method == http.MethodPut {
			s.putObject(w, bucket, key, body)
		} else {
			s.getObject(w, bucket, key)
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (s *Server) listBuckets(w http.ResponseWriter) {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	type bucket struct {
		Name string `xml:"Name"`
	}
	result := struct {
		XMLName xml.Name `xml:"ListAllMyBucketsResult"`
		Buckets []bucket `xml:"Buckets>Bucket"`
	}{}
	for _, name := range names {
		result.Buckets = append(result.Buckets, bucket{Name: name})
	}
	writeXML(w, result)
}

// continuation tokens are the offset of the next key
func (s *Server) listObjects(w http.ResponseWriter, name string, query url.Values) {
	s.mu.Lock()
	objects, ok := s.buckets[name]
	keys := sortedKeys(objects)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	limit, err := strconv.Atoi(query.Get("max-keys"))
	if err != nil || limit <= 0 {
		limit = 1000
	}
	if s.PageSize > 0 && s.PageSize < limit {
		limit = s.PageSize
	}
	start := 0
	if token := query.Get("continuation-token"); token != "" {
		start, err = strconv.Atoi(strings.TrimPrefix(token, "offset-"))
		if err != nil || start > len(keys) {
			writeError(w, http.StatusBadRequest, "InvalidArgument")
			return
		}
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}

	type content struct {
		Key string `xml:"Key"`
	}
	result := struct {
		XMLName               xml.Name  `xml:"ListBucketResult"`
		Name                  string    `xml:"Name"`
		KeyCount              int       `xml:"KeyCount"`
		IsTruncated           bool      `xml:"IsTruncated"`
		NextContinuationToken string    `xml:"NextContinuationToken,omitempty"`
		Contents              []content `xml:"Contents"`
	}{
		Name:        name,
		KeyCount:    end - start,
		IsTruncated: end < len(keys),
	}
	if result.IsTruncated {
		result.NextContinuationToken = "offset-" + strconv.Itoa(end)
	}
	for _, k := range keys[start:end] {
		result.Contents = append(result.Contents, content{Key: k})
	}
	writeXML(w, result)
}

func (s *Server) putObject(w http.ResponseWriter, bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	objects[key] = body
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, bucket, key string) {
	s.mu.Lock()
	body, ok := s.buckets[bucket][key]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func splitPath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func sortedKeys(objects map[string][]byte) []string {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeXML(w http.ResponseWriter, v interface{}) {
	out, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	w.Write(out)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header + "<Error><Code>" + code + "</Code></Error>"))
}
