package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/exportd/exportd/go/exports"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	var req exports.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var job = s.Registry.Create(req)
	exportsCreatedCounter.Inc()
	log.WithFields(log.Fields{
		"exportId": job.ID,
		"format":   req.Format,
		"columns":  len(req.Columns),
	}).Info("created export job")

	writeJSON(w, http.StatusCreated, map[string]any{
		"exportId": job.ID,
		"status":   job.Status,
	})
}

func (s *Server) exportStatus(w http.ResponseWriter, r *http.Request) {
	var job, err = s.Registry.Get(mux.Vars(r)["exportId"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	var job, err = s.Registry.Get(mux.Vars(r)["exportId"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	if job.Status == exports.StatusPending {
		// Concurrent downloads can race this transition. Losing the race
		// is fine: status is best-effort while streams are in flight.
		_ = s.Registry.UpdateStatus(job.ID, exports.StatusInProgress, "")
	}

	var format = job.Request.Format
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "export_"+job.ID+"."+format.Ext()))
	if job.Request.Compression == exports.CompressionGzip {
		w.Header().Set("Content-Encoding", "gzip")
	}

	streamsStartedCounter.WithLabelValues(string(format)).Inc()
	var res, runErr = s.Driver.Run(r.Context(), job.Request, w)
	streamRowsCounter.WithLabelValues(string(format)).Add(float64(res.Rows))
	streamBytesCounter.WithLabelValues(string(format)).Add(float64(res.Bytes))

	if runErr != nil {
		// Completed jobs are never regressed by a failed re-download;
		// the update is refused by the job state machine.
		_ = s.Registry.UpdateStatus(job.ID, exports.StatusFailed, exports.CauseOf(runErr))
		streamsFailedCounter.WithLabelValues(string(format)).Inc()
		log.WithFields(log.Fields{
			"exportId": job.ID,
			"format":   format,
			"rows":     res.Rows,
			"bytes":    res.Bytes,
			"error":    runErr,
		}).Warn("export stream failed")

		if res.Bytes == 0 {
			// Nothing reached the client yet, so a clean error response
			// is still possible.
			w.Header().Del("Content-Disposition")
			w.Header().Del("Content-Encoding")
			writeError(w, http.StatusInternalServerError, runErr)
			return
		}
		// Mid-stream there's no way to deliver a well-formed error body.
		// Aborting the handler closes the connection, which the client
		// observes as truncation.
		panic(http.ErrAbortHandler)
	}

	_ = s.Registry.UpdateStatus(job.ID, exports.StatusCompleted, "")
	streamsCompletedCounter.WithLabelValues(string(format)).Inc()
	log.WithFields(log.Fields{
		"exportId": job.ID,
		"format":   format,
		"rows":     res.Rows,
		"bytes":    res.Bytes,
	}).Info("export stream completed")
}

func (s *Server) runBenchmark(w http.ResponseWriter, r *http.Request) {
	log.Info("starting export benchmark")

	var report, err = s.Bench.Run(r.Context())
	if err != nil {
		log.WithField("error", err).Warn("export benchmark failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
