package logging_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-autoagent/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"WARN", false, false},
		{"bogus", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := logging.New(tc.level, buf)
			l.Debug("debug message")
			l.Info("info message")
			l.Error("error message")

			out := buf.String()
			assert.Equal(t, tc.wantDebug, bytes.Contains([]byte(out), []byte("debug message")))
			assert.Equal(t, tc.wantInfo, bytes.Contains([]byte(out), []byte("info message")))
			assert.Contains(t, out, "error message")
		})
	}
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logging.Component(logging.New("debug", buf), "store")
	ctx := logging.With(context.Background(), l)

	got := logging.From(ctx)
	require.Equal(t, l, got)
	got.Info("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "store")
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	orig := logging.Default()
	defer logging.SetDefault(orig)

	buf := &bytes.Buffer{}
	custom := logging.New("info", buf)
	logging.SetDefault(custom)

	assert.Equal(t, custom, logging.From(context.Background()))
}
