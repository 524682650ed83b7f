package forwarder

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Request is a read-only snapshot of an intercepted request. Each attempt
// derives its own outbound request from it.
type Request struct {
	ID       string
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// NewRequest snapshots r. The body is read once, and only for methods that
// carry one.
func NewRequest(id string, r *http.Request) (*Request, error) {
	req := &Request{
		ID:       id,
		Method:   r.Method,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
	}

	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if req.CarriesBody() && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = body
	}

	return req, nil
}

// CarriesBody reports whether the method conventionally has a body.
func (r *Request) CarriesBody() bool {
	return carriesBody(r.Method)
}

func (r *Request) bodyReader() io.Reader {
	if !r.CarriesBody() {
		return nil
	}
	return bytes.NewReader(r.Body)
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}
