package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"template-ingest/internal/common/errors"
)

const runKeyPrefix = "ingest:run:"

// RunStatus is the externally visible progress of one pipeline run.
type RunStatus struct {
	RunID       string   `json:"runId"`
	TemplateID  string   `json:"templateId"`
	State       string   `json:"state"`
	Transitions []string `json:"transitions"`
	Error       string   `json:"error,omitempty"`
	AssetCount  int      `json:"assetCount"`
	StartedAt   string   `json:"startedAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// RunTracker keeps run status in a Redis hash per run, expiring after ttl.
type RunTracker struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewRunTracker(rdb *redis.Client, ttl time.Duration) *RunTracker {
	return &RunTracker{redis: rdb, ttl: ttl, now: time.Now}
}

func runKey(runID string) string {
	return runKeyPrefix + runID
}

func (t *RunTracker) Start(ctx context.Context, runID, templateID, state string) error {
	ts := t.now().UTC().Format(time.RFC3339Nano)
	transitions, _ := json.Marshal([]string{state})
	return t.write(ctx, runID, map[string]interface{}{
		"runId":       runID,
		"templateId":  templateID,
		"state":       state,
		"transitions": string(transitions),
		"startedAt":   ts,
		"updatedAt":   ts,
	})
}

// Transition records the new state and appends it to the history.
func (t *RunTracker) Transition(ctx context.Context, runID, state string) error {
	key := runKey(runID)
	raw, err := t.redis.HGet(ctx, key, "transitions").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read run %s: %w", runID, err)
	}

	var history []string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &history)
	}
	history = append(history, state)
	encoded, _ := json.Marshal(history)

	return t.write(ctx, runID, map[string]interface{}{
		"state":       state,
		"transitions": string(encoded),
		"updatedAt":   t.now().UTC().Format(time.RFC3339Nano),
	})
}

// Finish stores the terminal outcome. errMsg is empty on success.
func (t *RunTracker) Finish(ctx context.Context, runID string, assetCount int, errMsg string) error {
	return t.write(ctx, runID, map[string]interface{}{
		"assetCount": assetCount,
		"error":      errMsg,
		"updatedAt":  t.now().UTC().Format(time.RFC3339Nano),
	})
}

func (t *RunTracker) Get(ctx context.Context, runID string) (*RunStatus, error) {
	fields, err := t.redis.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return nil, errors.NewResourceNotFoundError("run", "runId: "+runID)
	}

	status := &RunStatus{
		RunID:      fields["runId"],
		TemplateID: fields["templateId"],
		State:      fields["state"],
		Error:      fields["error"],
		StartedAt:  fields["startedAt"],
		UpdatedAt:  fields["updatedAt"],
	}
	status.AssetCount, _ = strconv.Atoi(fields["assetCount"])
	_ = json.Unmarshal([]byte(fields["transitions"]), &status.Transitions)
	return status, nil
}

func (t *RunTracker) write(ctx context.Context, runID string, values map[string]interface{}) error {
	key := runKey(runID)
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write run %s: %w", runID, err)
	}
	return nil
}
