package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/api-failover/internal/handler"
	"github.com/angeloszaimis/api-failover/internal/metrics"
)

func setupRouter(interceptor *handler.InterceptorHandler, collector *metrics.Collector, gatherer prometheus.Gatherer, metricsPath string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", interceptor)
	mux.HandleFunc(metricsPath, collector.Handler())
	mux.Handle(metricsPath+"/prometheus", metrics.PrometheusHandler(gatherer))

	return mux
}
