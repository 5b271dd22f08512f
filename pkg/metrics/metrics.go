package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initOnce          sync.Once
	inferenceCounter  metric.Int64Counter
	stepCounter       metric.Int64Counter
	runCounter        metric.Int64Counter
	runDuration       metric.Float64Histogram
	approvalCounter   metric.Int64Counter
	selectedTokensHis metric.Int64Histogram
)

// InitMetrics creates the instruments once. Call after InitMeterProvider;
// until then every Record function is a no-op.
func InitMetrics(ctx context.Context) error {
	var err error
	initOnce.Do(func() {
		m := Meter()
		inferenceCounter, err = m.Int64Counter("pilot_inference_calls_total", metric.WithDescription("Inference calls by provider and outcome"))
		if err != nil {
			return
		}
		stepCounter, err = m.Int64Counter("pilot_executor_steps_total", metric.WithDescription("Planner and navigator steps by outcome"))
		if err != nil {
			return
		}
		runCounter, err = m.Int64Counter("pilot_runs_total", metric.WithDescription("Finished runs by terminal status"))
		if err != nil {
			return
		}
		runDuration, err = m.Float64Histogram("pilot_run_duration_seconds", metric.WithDescription("Run wall time in seconds"))
		if err != nil {
			return
		}
		approvalCounter, err = m.Int64Counter("pilot_approvals_total", metric.WithDescription("Resolved approval requests by outcome"))
		if err != nil {
			return
		}
		selectedTokensHis, err = m.Int64Histogram("pilot_context_selected_tokens", metric.WithDescription("Tokens handed to one inference call by context selection"))
	})
	return err
}

// RecordInference counts one inference call.
func RecordInference(ctx context.Context, provider, outcome string) {
	if inferenceCounter == nil {
		return
	}
	inferenceCounter.Add(ctx, 1, metric.WithAttributes(AttrProvider.String(provider), AttrOutcome.String(outcome)))
}

// RecordStep counts one executor step.
func RecordStep(ctx context.Context, role, outcome string) {
	if stepCounter == nil {
		return
	}
	stepCounter.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role), AttrOutcome.String(outcome)))
}

// RecordRun counts a finished run and its duration.
func RecordRun(ctx context.Context, status string, d time.Duration) {
	if runCounter != nil {
		runCounter.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status)))
	}
	if runDuration != nil {
		runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrStatus.String(status)))
	}
}

// RecordApproval counts a resolved approval request.
func RecordApproval(ctx context.Context, outcome string) {
	if approvalCounter == nil {
		return
	}
	approvalCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordSelectedTokens records the size of one context selection.
func RecordSelectedTokens(ctx context.Context, tokens int) {
	if selectedTokensHis == nil {
		return
	}
	selectedTokensHis.Record(ctx, int64(tokens))
}
