package httpapi

import (
	"net/http"
	"sync"
)

// ResponseRecorder wraps the client's writer and remembers what the handler
// wrote, for the access log and for the recover middleware.
type ResponseRecorder struct {
	mu      sync.Mutex
	status  int
	bytes   int
	written bool

	underlying http.ResponseWriter
}

func NewResponseRecorder(responseWriter http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		status:     http.StatusOK,
		underlying: responseWriter,
	}
}

// Header implements http.ResponseWriter
func (r *ResponseRecorder) Header() http.Header {
	return r.underlying.Header()
}

// Write implements http.ResponseWriter
func (r *ResponseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.written = true
	r.mu.Unlock()

	n, err := r.underlying.Write(p)

	r.mu.Lock()
	r.bytes += n
	r.mu.Unlock()
	return n, err
}

// WriteHeader implements http.ResponseWriter
func (r *ResponseRecorder) WriteHeader(status int) {
	r.mu.Lock()
	if r.written {
		r.mu.Unlock()
		return
	}
	r.status = status
	r.written = true
	r.mu.Unlock()
	r.underlying.WriteHeader(status)
}

func (r *ResponseRecorder) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// BytesWritten returns the number of body bytes sent to the client.
func (r *ResponseRecorder) BytesWritten() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Written reports whether the status line has gone out.
func (r *ResponseRecorder) Written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
