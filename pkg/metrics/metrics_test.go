package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBeforeInit(t *testing.T) {
	// Must not panic while instruments are nil.
	ctx := context.Background()
	RecordInference(ctx, "local", "ok")
	RecordStep(ctx, "navigator", "ok")
	RecordRun(ctx, "completed", time.Second)
	RecordApproval(ctx, "approved")
	RecordSelectedTokens(ctx, 10)
}

func TestMetricsExposed(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "pilot-test")
	require.NoError(t, err)
	require.NoError(t, InitMetrics(ctx))

	RecordInference(ctx, "remote", "ok")
	RecordRun(ctx, "completed", 2*time.Second)
	RecordApproval(ctx, "timeout")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "pilot_inference_calls_total")
	assert.Contains(t, string(body), "pilot_runs_total")
	assert.Contains(t, string(body), `outcome="timeout"`)
}
