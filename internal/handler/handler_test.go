package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-failover/internal/backend"
	"github.com/angeloszaimis/api-failover/internal/forwarder"
	"github.com/angeloszaimis/api-failover/internal/handler"
	"github.com/angeloszaimis/api-failover/internal/lifecycle"
	"github.com/angeloszaimis/api-failover/pkg/logger"
)

type gate bool

func (g gate) Controlling() bool { return bool(g) }

// spyForwarder counts calls and returns a canned result.
type spyForwarder struct {
	calls atomic.Int32
	resp  *forwarder.Response
	err   error
	panic any
	seen  *forwarder.Request
}

func (s *spyForwarder) Forward(_ context.Context, req *forwarder.Request) (*forwarder.Response, error) {
	s.calls.Add(1)
	s.seen = req
	if s.panic != nil {
		panic(s.panic)
	}
	return s.resp, s.err
}

type passthroughSpy struct {
	calls atomic.Int32
	path  string
}

func (p *passthroughSpy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	p.path = r.URL.Path
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "static")
}

func decodeFault(w *httptest.ResponseRecorder) forwarder.FaultBody {
	var body forwarder.FaultBody
	Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
	return body
}

var _ = Describe("InterceptorHandler", func() {
	var (
		fwd  *spyForwarder
		pass *passthroughSpy
		h    *handler.InterceptorHandler
	)

	BeforeEach(func() {
		fwd = &spyForwarder{resp: &forwarder.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(`{"ok":true}`),
		}}
		pass = &passthroughSpy{}
		h = handler.NewInterceptorHandler(logger.Discard(), "/api/", gate(true), fwd, pass, nil)
	})

	Describe("InScope", func() {
		DescribeTable("matches the API prefix only",
			func(path string, expected bool) {
				Expect(h.InScope(httptest.NewRequest(http.MethodGet, path, nil))).To(Equal(expected))
			},
			Entry("api resource", "/api/users", true),
			Entry("api root", "/api/", true),
			Entry("asset", "/assets/logo.png", false),
			Entry("prefix without slash", "/api", false),
			Entry("prefix elsewhere", "/v1/api/users", false),
			Entry("root", "/", false),
		)
	})

	Describe("ServeHTTP", func() {
		It("should pass out-of-scope requests through without forwarding", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/logo.png", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("static"))
			Expect(pass.calls.Load()).To(Equal(int32(1)))
			Expect(pass.path).To(Equal("/assets/logo.png"))
			Expect(fwd.calls.Load()).To(BeZero())
		})

		It("should forward in-scope requests", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(`{"a":1}`)))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal(`{"ok":true}`))
			Expect(fwd.calls.Load()).To(Equal(int32(1)))
			Expect(pass.calls.Load()).To(BeZero())
			Expect(fwd.seen.ID).NotTo(BeEmpty())
			Expect(string(fwd.seen.Body)).To(Equal(`{"a":1}`))
		})

		It("should pass everything through until the lifecycle controls traffic", func() {
			h = handler.NewInterceptorHandler(logger.Discard(), "/api/", gate(false), fwd, pass, nil)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

			Expect(pass.calls.Load()).To(Equal(int32(1)))
			Expect(fwd.calls.Load()).To(BeZero())
		})

		It("should answer 500 JSON when forwarding returns an error", func() {
			fwd.err = errors.New("forwarder exploded")

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
			body := decodeFault(w)
			Expect(body.Error).NotTo(BeEmpty())
			Expect(body.Message).To(Equal("forwarder exploded"))
		})

		It("should answer 500 JSON when forwarding panics", func() {
			fwd.panic = "nil map write"

			w := httptest.NewRecorder()
			Expect(func() {
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
			}).NotTo(Panic())

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeFault(w).Message).To(Equal("nil map write"))
		})

		It("should answer 500 JSON when the request body cannot be read", func() {
			r := httptest.NewRequest(http.MethodPost, "/api/upload", io.NopCloser(failingReader{}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(fwd.calls.Load()).To(BeZero())
		})
	})
})

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

var _ = Describe("InterceptorHandler with real components", func() {
	var (
		origin    *httptest.Server
		backendB  *httptest.Server
		unreached *httptest.Server
		h         *handler.InterceptorHandler
		hitsA     atomic.Int32
		hitsB     atomic.Int32
	)

	BeforeEach(func() {
		hitsA.Store(0)
		hitsB.Store(0)

		origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "origin:"+r.URL.Path)
		}))
		unreached = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hitsA.Add(1)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
		}))
		backendB = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hitsB.Add(1)
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, `{"ok":true}`)
		}))

		a, _ := backend.Parse(unreached.URL, false)
		b, _ := backend.Parse(backendB.URL, false)
		fwd, err := forwarder.New(logger.Discard(), forwarder.Options{
			Candidates: []*backend.Candidate{a, b},
			Origin:     "http://localhost:3000",
			Timeout:    time.Second,
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		originURL, _ := url.Parse(origin.URL)
		manager, err := lifecycle.NewManager(logger.Discard(), lifecycle.NewMemoryStore("old"), "current")
		Expect(err).NotTo(HaveOccurred())
		_, err = manager.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())

		h = handler.NewInterceptorHandler(logger.Discard(), "/api/", manager, fwd,
			backend.NewPassthrough(originURL, logger.Discard()), nil)
	})

	AfterEach(func() {
		origin.Close()
		unreached.Close()
		backendB.Close()
	})

	It("should fail over from an unreachable backend to a healthy one", func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal(`{"ok":true}`))
		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
		Expect(w.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		Expect(hitsA.Load()).To(Equal(int32(1)))
		Expect(hitsB.Load()).To(Equal(int32(1)))
	})

	It("should relay assets to the origin untouched", func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/logo.png", nil))

		Expect(w.Body.String()).To(Equal("origin:/assets/logo.png"))
		Expect(hitsA.Load()).To(BeZero())
		Expect(hitsB.Load()).To(BeZero())
	})
})
