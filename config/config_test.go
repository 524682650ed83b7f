package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/api-failover/config"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv("FORWARDER_TIMEOUT")
		os.Unsetenv("FORWARDER_API_PREFIX")
	})

	writeConfig := func(content string) {
		err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0644)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				writeConfig(`
server:
  address: ":8080"
  environment: "dev"

forwarder:
  api_prefix: "/api/"
  origin: "http://localhost:3000"
  timeout: "5s"

backends:
  preferred:
    url: "https://tunnel.example.com"
    natural_origin: true
  fallbacks:
    - url: "http://localhost:8000"
    - url: "http://127.0.0.1:8000"

lifecycle:
  cache_name: "api-failover-v2"

logging:
  level: "info"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should list candidates in priority order", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				candidates := cfg.Candidates()
				Expect(candidates).To(HaveLen(3))
				Expect(candidates[0].URL).To(Equal("https://tunnel.example.com"))
				Expect(candidates[0].NaturalOrigin).To(BeTrue())
				Expect(candidates[1].URL).To(Equal("http://localhost:8000"))
				Expect(candidates[1].NaturalOrigin).To(BeFalse())
				Expect(candidates[2].URL).To(Equal("http://127.0.0.1:8000"))
			})

			It("should parse the attempt timeout", func() {
				cfg, _ := config.Load()
				Expect(cfg.AttemptTimeout()).To(Equal(5 * time.Second))
			})

			It("should default the passthrough URL to the origin", func() {
				cfg, _ := config.Load()
				Expect(cfg.Passthrough.URL).To(Equal("http://localhost:3000"))
			})

			It("should parse the cache name", func() {
				cfg, _ := config.Load()
				Expect(cfg.Lifecycle.CacheName).To(Equal("api-failover-v2"))
				Expect(cfg.Lifecycle.Store.Type).To(Equal(config.StoreMemory))
			})
		})

		Context("with environment variables", func() {
			It("should use defaults when config file missing", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Forwarder.APIPrefix).To(Equal("/api/"))
				Expect(cfg.AttemptTimeout()).To(Equal(10 * time.Second))
				Expect(cfg.Candidates()).To(HaveLen(1))
			})

			It("should let the environment override the timeout", func() {
				os.Setenv("FORWARDER_TIMEOUT", "750ms")
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AttemptTimeout()).To(Equal(750 * time.Millisecond))
			})

			It("should reject an invalid prefix from the environment", func() {
				os.Setenv("FORWARDER_API_PREFIX", "api")
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a .env file", func() {
			BeforeEach(func() {
				err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("FORWARDER_TIMEOUT=3s\n"), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should read values from it", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AttemptTimeout()).To(Equal(3 * time.Second))
			})
		})

		Context("with an invalid backend", func() {
			BeforeEach(func() {
				writeConfig(`
backends:
  preferred:
    url: "ftp://tunnel.example.com"
`)
			})

			It("should fail validation", func() {
				cfg, err := config.Load()
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server:      config.ServerConfig{Address: ":8080", Environment: config.EnvDev},
				Logging:     config.LoggingConfig{Level: config.LogLevelInfo},
				Forwarder:   config.ForwarderConfig{APIPrefix: "/api/", Origin: "http://localhost:3000", Timeout: "10s"},
				Backends:    config.BackendsConfig{Preferred: config.BackendConfig{URL: "http://localhost:8000"}},
				Passthrough: config.PassthroughConfig{URL: "http://localhost:3000"},
				Lifecycle:   config.LifecycleConfig{CacheName: "v1", Store: config.StoreConfig{Type: config.StoreMemory}},
				Metrics:     config.MetricsConfig{Path: "/_failover/metrics"},
			}
		})

		It("should accept a complete configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should accept a metrics path that only resembles the API prefix", func() {
			cfg.Metrics.Path = "/api-metrics"
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("rejects invalid values",
			func(mutate func(c *config.Config)) {
				mutate(cfg)
				Expect(cfg.Validate()).NotTo(Succeed())
			},
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }),
			Entry("bad address", func(c *config.Config) { c.Server.Address = "invalid:host:port" }),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }),
			Entry("prefix without slash", func(c *config.Config) { c.Forwarder.APIPrefix = "api" }),
			Entry("non-http origin", func(c *config.Config) { c.Forwarder.Origin = "file:///tmp" }),
			Entry("unparsable timeout", func(c *config.Config) { c.Forwarder.Timeout = "soon" }),
			Entry("zero timeout", func(c *config.Config) { c.Forwarder.Timeout = "0s" }),
			Entry("empty preferred backend", func(c *config.Config) { c.Backends.Preferred.URL = "" }),
			Entry("fallback without host", func(c *config.Config) {
				c.Backends.Fallbacks = []config.BackendConfig{{URL: "http://"}}
			}),
			Entry("missing cache name", func(c *config.Config) { c.Lifecycle.CacheName = "" }),
			Entry("unknown store", func(c *config.Config) { c.Lifecycle.Store.Type = "disk" }),
			Entry("redis store without url", func(c *config.Config) { c.Lifecycle.Store.Type = config.StoreRedis }),
			Entry("metrics path under the API prefix", func(c *config.Config) { c.Metrics.Path = "/api/metrics" }),
			Entry("metrics path equal to the API prefix", func(c *config.Config) { c.Metrics.Path = "/api/" }),
		)
	})
})
