package main

import (
	"net/http"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
	"github.com/launchkit/edge-middleware/internal/handler"
	"github.com/launchkit/edge-middleware/internal/metrics"
)

func setupRouter(
	mountPath string,
	collectHandler *handler.CollectHandler,
	leadHandler *handler.LeadHandler,
	conversionHandler *handler.ConversionHandler,
	collector *metrics.Collector,
	registry *circuitbreaker.Registry,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle(mountPath+"/", collectHandler)
	mux.Handle("/api/lead", leadHandler)
	mux.Handle("/api/conversion", conversionHandler)
	mux.HandleFunc("/metrics", collector.Handler(registry))

	return mux
}
