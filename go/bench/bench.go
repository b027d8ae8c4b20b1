// Package bench measures end-to-end export throughput: every format is
// streamed through the full pipeline to a temporary file while heap usage
// is sampled, and the per-format timings are reported side by side.
package bench

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/exportd/exportd/go/exports"
	"github.com/exportd/exportd/go/records"
)

const (
	// settleDelay lets the collector finish before a run is measured.
	settleDelay = 100 * time.Millisecond
	// samplePeriod is the heap sampling interval during a run.
	samplePeriod = 50 * time.Millisecond
)

// Result is one format's measured run.
type Result struct {
	Format          string  `json:"format"`
	Rows            int64   `json:"rows"`
	FileSizeBytes   int64   `json:"fileSizeBytes"`
	DurationSeconds float64 `json:"durationSeconds"`
	PeakMemoryMB    float64 `json:"peakMemoryMB"`
}

// Report is the full benchmark response.
type Report struct {
	DatasetRowCount int64    `json:"datasetRowCount"`
	Results         []Result `json:"results"`
}

// Harness runs the benchmark suite over a shared row source.
type Harness struct {
	// Source provides cursor-backed reads of the records table.
	Source exports.Opener
	// RowLimit caps the benchmarked rows per format when greater than
	// zero.
	RowLimit int64
}

// Run streams every format in sequence and reports per-format results. A
// failing format is logged and skipped; Run fails only when no format
// succeeds at all.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	var count, err = h.Source.Count(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("counting dataset rows: %w", err)
	}
	var report = Report{
		DatasetRowCount: count,
		Results:         make([]Result, 0, len(exports.Formats)),
	}

	for _, format := range exports.Formats {
		var result, err = h.runFormat(ctx, format)
		if err != nil {
			log.WithFields(log.Fields{
				"format": format,
				"error":  err,
			}).Warn("benchmark format failed")
			continue
		}
		report.Results = append(report.Results, result)
	}

	if len(report.Results) == 0 {
		return Report{}, fmt.Errorf("all benchmark formats failed")
	}
	return report, nil
}

// benchColumns projects every attribute under its own name.
func benchColumns() []exports.Column {
	var cols = make([]exports.Column, 0, len(records.Attributes))
	for _, a := range records.Attributes {
		cols = append(cols, exports.Column{Source: string(a), Target: string(a)})
	}
	return cols
}

func (h *Harness) runFormat(ctx context.Context, format exports.Format) (Result, error) {
	// Start each run from a settled heap so formats don't inherit each
	// other's garbage.
	runtime.GC()
	time.Sleep(settleDelay)

	var file, err = os.CreateTemp("", "export-bench-*."+format.Ext())
	if err != nil {
		return Result{}, fmt.Errorf("creating scratch file: %w", err)
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	var driver = &exports.Driver{Source: h.Source, RowLimit: h.RowLimit}
	var request = exports.Request{Format: format, Columns: benchColumns()}

	var peak = new(heapPeak)
	peak.sample()

	var started = time.Now()
	var streamed exports.Result
	var done = make(chan struct{})

	var group, groupCtx = errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(done)
		var err error
		streamed, err = driver.Run(groupCtx, request, file)
		return err
	})
	group.Go(func() error {
		var ticker = time.NewTicker(samplePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				peak.sample()
			}
		}
	})
	if err = group.Wait(); err != nil {
		return Result{}, err
	}

	var elapsed = time.Since(started)
	peak.sample()

	log.WithFields(log.Fields{
		"format":  format,
		"rows":    streamed.Rows,
		"bytes":   streamed.Bytes,
		"elapsed": elapsed,
	}).Info("benchmark format completed")

	return Result{
		Format:          string(format),
		Rows:            streamed.Rows,
		FileSizeBytes:   streamed.Bytes,
		DurationSeconds: round2(elapsed.Seconds()),
		PeakMemoryMB:    round2(float64(peak.bytes) / (1 << 20)),
	}, nil
}

// heapPeak tracks the largest observed heap allocation.
type heapPeak struct{ bytes uint64 }

func (p *heapPeak) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc > p.bytes {
		p.bytes = stats.HeapAlloc
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
