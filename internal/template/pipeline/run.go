package pipeline

import (
	"context"
	"time"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/common/metrics"
)

// run carries the per-invocation state. It is never shared.
type run struct {
	p         *Pipeline
	id        string
	log       logger.Logger
	result    *Result
	started   time.Time
	enteredAt time.Time
}

func (p *Pipeline) begin(ctx context.Context, templateID string) *run {
	now := p.now()
	r := &run{
		p:         p,
		id:        newRunID(),
		started:   now,
		enteredAt: now,
	}
	r.log = p.logger.WithFields(map[string]interface{}{
		"runId":      r.id,
		"templateId": templateID,
	})
	r.result = &Result{
		RunID:       r.id,
		TemplateID:  templateID,
		State:       StateIdle,
		Transitions: []State{StateIdle},
		Timings:     make(map[State]time.Duration),
	}

	metrics.IngestRunsActive.Inc()
	if p.deps.Runs != nil {
		if err := p.deps.Runs.Start(context.WithoutCancel(ctx), r.id, templateID, StateIdle.String()); err != nil {
			r.log.Warn("Failed to record run start", map[string]interface{}{"error": err})
		}
	}
	return r
}

// enter closes the timing of the current state and moves to next.
func (r *run) enter(ctx context.Context, next State) {
	now := r.p.now()
	prev := r.result.State
	if prev != StateIdle {
		elapsed := now.Sub(r.enteredAt)
		r.result.Timings[prev] += elapsed
		metrics.IngestStageDuration.WithLabelValues(prev.String()).Observe(elapsed.Seconds())
	}

	r.enteredAt = now
	r.result.State = next
	r.result.Transitions = append(r.result.Transitions, next)

	r.log.Debug("Run state changed", map[string]interface{}{
		"from": prev.String(),
		"to":   next.String(),
	})

	if r.p.deps.Runs != nil {
		if err := r.p.deps.Runs.Transition(context.WithoutCancel(ctx), r.id, next.String()); err != nil {
			r.log.Warn("Failed to record run transition", map[string]interface{}{"error": err})
		}
	}
}

// end moves a failing run to Failed and records the outcome.
func (r *run) end(ctx context.Context, err error) {
	outcome := "ok"
	errMsg := ""
	if err != nil {
		stdErr := errors.AsStandardError(err)
		outcome = string(stdErr.Code)
		errMsg = stdErr.Message
		failedIn := r.result.State
		r.enter(ctx, StateFailed)
		r.log.Error("Template ingest failed", map[string]interface{}{
			"state":     failedIn.String(),
			"errorCode": stdErr.Code,
			"error":     stdErr.Details,
		})
	} else {
		r.log.Info("Template ingest completed", map[string]interface{}{
			"assetCount":    r.result.AssetCount,
			"previewImages": len(r.result.PreviewImages),
			"skipped":       len(r.result.Failures),
		})
	}

	elapsed := r.p.now().Sub(r.started)
	metrics.IngestRunsActive.Dec()
	metrics.IngestRuns.WithLabelValues(outcome).Inc()
	metrics.IngestRunDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	r.p.obs.RecordRun(ctx, outcome, elapsed)

	if r.p.deps.Runs != nil {
		if ferr := r.p.deps.Runs.Finish(context.WithoutCancel(ctx), r.id, r.result.AssetCount, errMsg); ferr != nil {
			r.log.Warn("Failed to record run outcome", map[string]interface{}{"error": ferr})
		}
	}
}
