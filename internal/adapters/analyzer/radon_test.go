package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(_ context.Context, _ string, _ map[string]interface{}) {}

// fakeRunner returns canned output per radon subcommand.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func (f *fakeRunner) run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{dir, name}, args...))
	f.mu.Unlock()

	sub := args[0]
	if err := f.errs[sub]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[sub]), nil
}

const (
	rawOK = `{
		"./pkg/a.py": {"loc": 10, "lloc": 8, "sloc": 7, "comments": 2, "multi": 0, "blank": 1, "single_comments": 2},
		"./pkg/b.py": {"loc": 5, "lloc": 4, "sloc": 4, "comments": 0, "multi": 0, "blank": 1, "single_comments": 0}
	}`
	ccOK = `{
		"./pkg/a.py": [
			{"type": "function", "name": "f", "complexity": 1, "rank": "A"},
			{"type": "function", "name": "g", "complexity": 4, "rank": "A"}
		],
		"./pkg/b.py": [
			{"type": "class", "name": "C", "complexity": 1, "rank": "A", "methods": []}
		]
	}`
	miOK = `{
		"./pkg/a.py": {"mi": 70.0, "rank": "A"},
		"./pkg/b.py": {"mi": 90.0, "rank": "A"}
	}`
	halOK = `{
		"./pkg/a.py": {"total": {"h1": 1, "h2": 2, "N1": 1, "N2": 2, "vocabulary": 3, "length": 3, "calculated_length": 2, "volume": 4.5, "difficulty": 0.5, "effort": 2.25, "time": 0.125, "bugs": 0.0015}, "functions": {}},
		"./pkg/b.py": {"total": {"h1": 0, "h2": 0, "N1": 0, "N2": 0, "vocabulary": 1, "length": 1, "calculated_length": 0, "volume": 1.5, "difficulty": 1.5, "effort": 1.75, "time": 0.875, "bugs": 0.0005}, "functions": {}}
	}`
)

func okRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{"raw": rawOK, "cc": ccOK, "mi": miOK, "hal": halOK},
		errs:    map[string]error{},
	}
}

func TestRadon_Analyze_Aggregates(t *testing.T) {
	// Arrange
	runner := okRunner()
	r := NewRadon("", nopLogger{}).WithRunner(runner.run)

	// Act
	m, err := r.Analyze(context.Background(), "/work/repo")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 15, m.LOC)
	assert.Equal(t, 12, m.LLOC)
	assert.Equal(t, 11, m.SLOC)
	assert.Equal(t, 2, m.Comments)

	require.NotNil(t, m.AvgCC)
	assert.InDelta(t, 2.0, *m.AvgCC, 1e-9)
	require.NotNil(t, m.AvgMI)
	assert.InDelta(t, 80.0, *m.AvgMI, 1e-9)
	assert.InDelta(t, 2.0, *m.AvgVocabulary, 1e-9)
	assert.InDelta(t, 2.0, *m.AvgLength, 1e-9)
	assert.InDelta(t, 3.0, *m.AvgVolume, 1e-9)
	assert.InDelta(t, 1.0, *m.AvgDifficulty, 1e-9)
	assert.InDelta(t, 2.0, *m.AvgEffort, 1e-9)
	assert.InDelta(t, 0.5, *m.AvgTime, 1e-9)
	assert.InDelta(t, 0.001, *m.AvgBugs, 1e-9)

	require.Len(t, runner.calls, 4)
	for _, call := range runner.calls {
		assert.Equal(t, "/work/repo", call[0])
		assert.Equal(t, DefaultCommand, call[1])
	}
}

func TestRadon_Analyze_EmptyTreeHasAbsentAverages(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"raw": "{}", "cc": "{}", "mi": "{}", "hal": ""},
		errs:    map[string]error{},
	}
	r := NewRadon("radon", nopLogger{}).WithRunner(runner.run)

	m, err := r.Analyze(context.Background(), "/work/repo")

	require.NoError(t, err)
	assert.Zero(t, m.LOC)
	assert.Nil(t, m.AvgCC)
	assert.Nil(t, m.AvgMI)
	assert.Nil(t, m.AvgVolume)
	assert.Nil(t, m.AvgBugs)
}

func TestRadon_Analyze_FileErrors(t *testing.T) {
	const printErr = `{"./old.py": {"error": "Missing parentheses in call to 'print'. Did you mean print(...)? (<unknown>, line 3)"}}`

	tests := []struct {
		name         string
		override     map[string]string
		wantFile     string
		wantPrefix   string
		incompatible bool
	}{
		{
			name:         "incompatible source in raw pass",
			override:     map[string]string{"raw": printErr},
			wantFile:     "old.py",
			wantPrefix:   "Missing parentheses",
			incompatible: true,
		},
		{
			name:       "syntax error in cc pass",
			override:   map[string]string{"cc": `{"./bad.py": {"error": "invalid syntax (<unknown>, line 1)"}}`},
			wantFile:   "bad.py",
			wantPrefix: "invalid syntax",
		},
		{
			name: "raw error wins over hal error",
			override: map[string]string{
				"raw": `{"./a.py": {"error": "unexpected indent"}}`,
				"hal": printErr,
			},
			wantFile:   "a.py",
			wantPrefix: "unexpected indent",
		},
		{
			name: "first file in path order",
			override: map[string]string{
				"mi": `{"./z.py": {"error": "late"}, "./m.py": {"error": "early"}}`,
			},
			wantFile:   "m.py",
			wantPrefix: "early",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := okRunner()
			for k, v := range tt.override {
				runner.outputs[k] = v
			}
			r := NewRadon("", nopLogger{}).WithRunner(runner.run)

			m, err := r.Analyze(context.Background(), "/work/repo")

			require.Error(t, err)
			assert.Nil(t, m)
			var ae *domain.AnalysisError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantFile, ae.File)
			assert.Contains(t, ae.Message, tt.wantPrefix)
			assert.Equal(t, tt.incompatible, ae.Incompatible())
		})
	}
}

func TestRadon_Analyze_ProcessFailure(t *testing.T) {
	runner := okRunner()
	runner.errs["mi"] = errors.New("exec: \"radon\": executable file not found in $PATH")
	r := NewRadon("", nopLogger{}).WithRunner(runner.run)

	m, err := r.Analyze(context.Background(), "/work/repo")

	require.Error(t, err)
	assert.Nil(t, m)
	var ae *domain.AnalysisError
	assert.False(t, errors.As(err, &ae))
	assert.Contains(t, err.Error(), "radon mi failed")
}

func TestRadon_Analyze_MalformedJSON(t *testing.T) {
	runner := okRunner()
	runner.outputs["cc"] = "not json"
	r := NewRadon("", nopLogger{}).WithRunner(runner.run)

	_, err := r.Analyze(context.Background(), "/work/repo")

	require.Error(t, err)
	var ae *domain.AnalysisError
	assert.False(t, errors.As(err, &ae))
	assert.Contains(t, err.Error(), "failed to decode radon cc output")
}

func TestMean(t *testing.T) {
	assert.Nil(t, mean(nil))

	got := mean([]float64{1, 2, 3, 4})
	require.NotNil(t, got)
	assert.InDelta(t, 2.5, *got, 1e-9)
}

func TestPassArgs(t *testing.T) {
	assert.Equal(t, []string{"raw", "-j", "."}, passRaw.args())
	assert.Equal(t, []string{"cc", "-j", "--no-assert", "."}, passCC.args())
	assert.Equal(t, []string{"mi", "-j", "."}, passMI.args())
	assert.Equal(t, []string{"hal", "-j", "."}, passHal.args())
}
