package traffic

import "strings"

// Header is a case-insensitive header map; keys are stored lowercase.
type Header map[string]string

// Get returns the value for key, case-insensitively.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set stores the value under the lowercased key.
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del removes the header.
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Request is the neutral request snapshot captured from the wire.
// Read-only after construction; capture, never rewrite.
type Request struct {
	ID           string // transaction id
	URL          string // full URL including query
	Method       string // HTTP method
	Headers      Header
	Body         string // raw request body
	ResourceType string // e.g. Document, XHR
}

// Response is the neutral response snapshot.
type Response struct {
	StatusCode int
	Headers    Header
	MimeType   string
}

// NewRequest creates a request snapshot with initialized headers.
func NewRequest() *Request {
	return &Request{Headers: make(Header)}
}

// NewResponse creates a response snapshot with initialized headers.
func NewResponse() *Response {
	return &Response{Headers: make(Header)}
}
