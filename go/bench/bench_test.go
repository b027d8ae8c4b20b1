package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exportd/exportd/go/exports/exportstest"
	"github.com/exportd/exportd/go/scan"
)

func TestHarnessRunsAllFormats(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(25)}
	var harness = &Harness{Source: opener}

	var report, err = harness.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(25), report.DatasetRowCount)
	require.Len(t, report.Results, 4)

	var formats []string
	for _, result := range report.Results {
		formats = append(formats, result.Format)
		require.Equal(t, int64(25), result.Rows)
		require.Greater(t, result.FileSizeBytes, int64(0))
		require.GreaterOrEqual(t, result.DurationSeconds, 0.0)
		require.Greater(t, result.PeakMemoryMB, 0.0)
	}
	require.Equal(t, []string{"csv", "json", "xml", "parquet"}, formats)

	// One cursor per format, each released.
	require.Equal(t, 4, opener.Opens())
	require.Equal(t, 4, opener.Closes())
}

func TestHarnessAppliesRowLimit(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(50)}
	var harness = &Harness{Source: opener, RowLimit: 10}

	var report, err = harness.Run(context.Background())
	require.NoError(t, err)

	// The dataset count reflects the whole table even when runs are
	// capped.
	require.Equal(t, int64(50), report.DatasetRowCount)
	for _, result := range report.Results {
		require.Equal(t, int64(10), result.Rows)
	}
}

func TestHarnessCountFailure(t *testing.T) {
	var opener = &exportstest.Opener{CountErr: errors.New("no database")}
	var harness = &Harness{Source: opener}

	var _, err = harness.Run(context.Background())
	require.Error(t, err)
}

func TestHarnessIsolatesFailingFormat(t *testing.T) {
	// Only the columnar cursor fails, which hits parquet alone. The other
	// formats still run and report.
	var opener = &exportstest.Opener{
		Records:          exportstest.Seed(5),
		OpenErr:          errors.New("no database"),
		OpenErrBatchSize: scan.ColumnarBatchSize,
	}
	var harness = &Harness{Source: opener}

	var report, err = harness.Run(context.Background())
	require.NoError(t, err)

	var formats []string
	for _, result := range report.Results {
		formats = append(formats, result.Format)
		require.Equal(t, int64(5), result.Rows)
	}
	require.Equal(t, []string{"csv", "json", "xml"}, formats)
}

func TestHarnessAllFormatsFailing(t *testing.T) {
	var opener = &exportstest.Opener{
		Records: exportstest.Seed(5),
		OpenErr: errors.New("no database"),
	}
	var harness = &Harness{Source: opener}

	var _, err = harness.Run(context.Background())
	require.EqualError(t, err, "all benchmark formats failed")
}

func TestHarnessRemovesScratchFiles(t *testing.T) {
	var scratch = t.TempDir()
	t.Setenv("TMPDIR", scratch)

	var opener = &exportstest.Opener{Records: exportstest.Seed(5)}
	var harness = &Harness{Source: opener}

	var _, err = harness.Run(context.Background())
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(scratch, "export-bench-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)

	var entries, readErr = os.ReadDir(scratch)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}
