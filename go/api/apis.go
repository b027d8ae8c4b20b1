// Package api exposes the export engine's HTTP surface: health, export
// creation and download, the status lookup, and the benchmark runner.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exportd/exportd/go/bench"
	"github.com/exportd/exportd/go/exports"
)

// Server bundles the dependencies of the HTTP handlers.
type Server struct {
	Registry *exports.Registry
	Driver   *exports.Driver
	Bench    *bench.Harness
}

// RegisterAPIs mounts all routes on |router|. Routes with fixed path
// segments register ahead of parameterized ones, so that
// /exports/benchmark is matched before /exports/{exportId} can capture
// "benchmark" as an identifier.
func RegisterAPIs(router *mux.Router, srv *Server) {
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", srv.health).Methods("GET")
	router.HandleFunc("/exports", srv.createExport).Methods("POST")
	router.HandleFunc("/exports/benchmark", srv.runBenchmark).Methods("GET")
	router.HandleFunc("/exports/{exportId}", srv.exportStatus).Methods("GET")
	router.HandleFunc("/exports/{exportId}/download", srv.downloadExport).Methods("GET")
}
