package forwarder

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, X-Requested-With"
)

const (
	allFailedLabel   = "All backends failed"
	allFailedMessage = "Unable to reach any backend server. The API may be offline or its address may have changed."
	faultLabel       = "Interceptor error"
	unknownFailure   = "unknown error"
)

var solutions = []string{
	"Check that the backend server is running",
	"Verify the configured backend URLs are current",
	"Check your network connection",
	"Retry the request in a few moments",
}

// Response is the value returned to the original caller.
type Response struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte
	// Backend is the candidate that answered; empty for synthesized responses.
	Backend string
}

// Send writes the response to w. Headers on w set earlier are replaced by
// the response headers.
func (r *Response) Send(w http.ResponseWriter) error {
	for k, v := range r.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}

// FailureBody is the payload of the all-failed response.
type FailureBody struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Backends  []string  `json:"backends"`
	LastError string    `json:"lastError"`
	Solutions []string  `json:"solutions"`
	Timestamp time.Time `json:"timestamp"`
}

// FaultBody is the payload of the internal-fault response.
type FaultBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func successResponse(res *http.Response, body []byte, origin, backend string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")

	return &Response{
		StatusCode: res.StatusCode,
		StatusText: statusText(res),
		Header:     h,
		Body:       body,
		Backend:    backend,
	}
}

func allFailedResponse(backends []string, lastErr error, now time.Time) (*Response, error) {
	last := unknownFailure
	if lastErr != nil {
		last = lastErr.Error()
	}

	body, err := json.Marshal(FailureBody{
		Error:     allFailedLabel,
		Message:   allFailedMessage,
		Backends:  backends,
		LastError: last,
		Solutions: solutions,
		Timestamp: now.UTC(),
	})
	if err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")

	return &Response{
		StatusCode: http.StatusServiceUnavailable,
		StatusText: http.StatusText(http.StatusServiceUnavailable),
		Header:     h,
		Body:       body,
	}, nil
}

// FaultResponse builds the 500 response used when forwarding itself breaks.
func FaultResponse(cause error) *Response {
	msg := unknownFailure
	if cause != nil {
		msg = cause.Error()
	}

	// Marshalling two strings cannot fail.
	body, _ := json.Marshal(FaultBody{Error: faultLabel, Message: msg})

	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")

	return &Response{
		StatusCode: http.StatusInternalServerError,
		StatusText: http.StatusText(http.StatusInternalServerError),
		Header:     h,
		Body:       body,
	}
}

// statusText strips the numeric code from res.Status ("404 Not Found").
func statusText(res *http.Response) string {
	if i := strings.IndexByte(res.Status, ' '); i >= 0 {
		return res.Status[i+1:]
	}
	return http.StatusText(res.StatusCode)
}
