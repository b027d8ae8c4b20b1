package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var exportsCreatedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "exportd_exports_created_total",
	Help: "counter of export jobs created",
})

var streamsStartedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exportd_streams_started_total",
	Help: "counter of export downloads which began streaming",
}, []string{"format"})

var streamsCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exportd_streams_completed_total",
	Help: "counter of export downloads which streamed to completion",
}, []string{"format"})

var streamsFailedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exportd_streams_failed_total",
	Help: "counter of export downloads which failed or were disconnected",
}, []string{"format"})

var streamRowsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exportd_stream_rows_total",
	Help: "counter of rows encoded into export downloads",
}, []string{"format"})

var streamBytesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exportd_stream_bytes_total",
	Help: "counter of bytes written to export download clients",
}, []string{"format"})
