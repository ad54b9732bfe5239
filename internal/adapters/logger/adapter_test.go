package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type call struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// recordingLogger implements Logger and records every call.
type recordingLogger struct {
	calls []call
}

func (r *recordingLogger) Info(_ context.Context, msg string, fields map[string]any) {
	r.calls = append(r.calls, call{level: "info", msg: msg, fields: fields})
}

func (r *recordingLogger) Debug(_ context.Context, msg string, fields map[string]any) {
	r.calls = append(r.calls, call{level: "debug", msg: msg, fields: fields})
}

func (r *recordingLogger) Warn(_ context.Context, msg string, fields map[string]any) {
	r.calls = append(r.calls, call{level: "warn", msg: msg, fields: fields})
}

func (r *recordingLogger) Error(_ context.Context, msg string, err error, fields map[string]any) {
	r.calls = append(r.calls, call{level: "error", msg: msg, err: err, fields: fields})
}

// syncingLogger adds a Sync method to recordingLogger.
type syncingLogger struct {
	recordingLogger
	synced  int
	syncErr error
}

func (s *syncingLogger) Sync() error {
	s.synced++
	return s.syncErr
}

func TestZapAdapter_Forwarding(t *testing.T) {
	ctx := context.Background()
	fields := map[string]any{"repository": "flask", "commit": 3}

	tests := []struct {
		name string
		log  func(a *ZapAdapter)
		want call
	}{
		{
			name: "info",
			log:  func(a *ZapAdapter) { a.Info(ctx, "processed commit", fields) },
			want: call{level: "info", msg: "processed commit", fields: fields},
		},
		{
			name: "debug",
			log:  func(a *ZapAdapter) { a.Debug(ctx, "opened existing working copy", fields) },
			want: call{level: "debug", msg: "opened existing working copy", fields: fields},
		},
		{
			name: "warn",
			log:  func(a *ZapAdapter) { a.Warn(ctx, "found zero computable commits", fields) },
			want: call{level: "warn", msg: "found zero computable commits", fields: fields},
		},
		{
			name: "error",
			log:  func(a *ZapAdapter) { a.Error(ctx, "repository scan failed", assert.AnError, fields) },
			want: call{level: "error", msg: "repository scan failed", err: assert.AnError, fields: fields},
		},
		{
			name: "nil fields",
			log:  func(a *ZapAdapter) { a.Info(ctx, "batch finished", nil) },
			want: call{level: "info", msg: "batch finished"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingLogger{}

			tt.log(NewZapAdapter(rec))

			assert.Equal(t, []call{tt.want}, rec.calls)
		})
	}
}

func TestZapAdapter_Sync(t *testing.T) {
	t.Run("flushes a buffering backend", func(t *testing.T) {
		backend := &syncingLogger{}

		err := NewZapAdapter(backend).Sync()

		assert.NoError(t, err)
		assert.Equal(t, 1, backend.synced)
	})

	t.Run("returns the backend error", func(t *testing.T) {
		backend := &syncingLogger{syncErr: errors.New("sync /dev/stderr: invalid argument")}

		err := NewZapAdapter(backend).Sync()

		assert.EqualError(t, err, "sync /dev/stderr: invalid argument")
	})

	t.Run("no-op without Sync", func(t *testing.T) {
		assert.NoError(t, NewZapAdapter(&recordingLogger{}).Sync())
	})
}
