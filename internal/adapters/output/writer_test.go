package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

func TestWriter_WriteSummary(t *testing.T) {
	tests := []struct {
		name       string
		summary    domain.ScanSummary
		wantOutput string
	}{
		{
			name: "completed scan",
			summary: domain.ScanSummary{
				Repository:  "flask",
				Termination: domain.TerminationCompleted,
				Visited:     12,
				Buffered:    10,
				Skipped:     2,
				PersistedTo: "data/results/flask.csv",
			},
			wantOutput: "flask\tcompleted\t12\t10\t2\tdata/results/flask.csv\n",
		},
		{
			name: "aborted scan has no path",
			summary: domain.ScanSummary{
				Repository:  "legacy",
				Termination: domain.TerminationAborted,
				Visited:     7,
				Skipped:     7,
				AbortReason: "6 of the last 100 commits failed (limit 5)",
			},
			wantOutput: "legacy\taborted\t7\t0\t7\t-\n",
		},
		{
			name: "stopped scan",
			summary: domain.ScanSummary{
				Repository:  "tools",
				Termination: domain.TerminationStopped,
				Visited:     5,
				Buffered:    4,
				PersistedTo: "/tmp/out.csv",
			},
			wantOutput: "tools\tstopped\t5\t4\t0\t/tmp/out.csv\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var buf bytes.Buffer
			writer := NewWriterWithOutput(&buf)

			// Act
			err := writer.WriteSummary(&tt.summary)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutput, buf.String())
		})
	}
}

func TestWriter_WritePath(t *testing.T) {
	var buf bytes.Buffer

	err := NewWriterWithOutput(&buf).WritePath("data/results/_all_results.csv")

	require.NoError(t, err)
	assert.Equal(t, "data/results/_all_results.csv\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_PropagatesWriteErrors(t *testing.T) {
	writer := NewWriterWithOutput(failingWriter{})

	assert.EqualError(t, writer.WriteSummary(&domain.ScanSummary{Repository: "x"}), "broken pipe")
	assert.EqualError(t, writer.WritePath("x"), "broken pipe")
}

func TestNewWriter_UsesStdout(t *testing.T) {
	writer := NewWriter()
	assert.NotNil(t, writer)
	assert.NotNil(t, writer.out)
}
