package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	runPrefix        = "run/"
	checkpointPrefix = "checkpoint/"
	historyKey       = "history"
)

// Run is a branch of a (workspace, thread) pair.
type Run struct {
	CreatedAt   time.Time `json:"createdAt"`
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	ThreadID    string    `json:"threadId"`
	Label       string    `json:"label,omitempty"`
	// SourceCheckpointID is set on runs opened by a restore.
	SourceCheckpointID string `json:"sourceCheckpointId,omitempty"`
}

// CheckpointMetadata records a checkpoint's lineage.
type CheckpointMetadata struct {
	ParentCheckpointID string `json:"parentCheckpointId,omitempty"`
	BranchName         string `json:"branchName,omitempty"`
	MessageCount       int    `json:"messageCount"`
}

// Checkpoint is a point-in-time copy of a run's message history.
type Checkpoint struct {
	Timestamp   time.Time          `json:"timestamp"`
	Messages    []*types.Message   `json:"messages"`
	ID          string             `json:"id"`
	Label       string             `json:"label,omitempty"`
	WorkspaceID string             `json:"workspaceId"`
	SessionID   string             `json:"sessionId"`
	RunID       string             `json:"runId"`
	Metadata    CheckpointMetadata `json:"metadata"`
}

// Restored is the result of RestoreCheckpoint.
type Restored struct {
	Checkpoint  *Checkpoint `json:"checkpoint"`
	NewRunID    string      `json:"newRunId"`
	SourceRunID string      `json:"sourceRunId"`
}

func (s *Store) threadNS(workspaceID, threadID string) kv.Namespace {
	return kv.Namespace{UserID: s.userID, WorkspaceID: workspaceID, ThreadID: threadID}
}

func (s *Store) runNS(workspaceID, threadID, runID string) kv.Namespace {
	return kv.Namespace{UserID: s.userID, WorkspaceID: workspaceID, ThreadID: threadID, RunID: runID}
}

func (s *Store) requireWorkspace(ctx context.Context, id string) error {
	if id == "" {
		return types.NewBadRequestError("workspace id is required", nil)
	}
	_, err := s.Get(ctx, id)
	return err
}

// CreateRun allocates a new run id under (workspace, thread).
func (s *Store) CreateRun(ctx context.Context, workspaceID, threadID, label string) (*Run, error) {
	if threadID == "" {
		return nil, types.NewBadRequestError("thread id is required", nil)
	}
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.createRun(ctx, workspaceID, threadID, label, "")
}

func (s *Store) createRun(ctx context.Context, workspaceID, threadID, label, source string) (*Run, error) {
	r := &Run{
		ID:                 ulid.Make().String(),
		WorkspaceID:        workspaceID,
		ThreadID:           threadID,
		Label:              label,
		SourceCheckpointID: source,
		CreatedAt:          s.now(),
	}
	if err := s.put(ctx, s.threadNS(workspaceID, threadID), runPrefix+r.ID, r, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the runs of (workspace, thread), oldest first.
func (s *Store) ListRuns(ctx context.Context, workspaceID, threadID string) ([]*Run, error) {
	if workspaceID == "" || threadID == "" {
		return nil, types.NewBadRequestError("workspace and thread ids are required", nil)
	}
	runs, err := search[Run](ctx, s, s.threadNS(workspaceID, threadID), runPrefix)
	if err != nil {
		return nil, err
	}
	// ULIDs sort by creation time.
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

// SaveHistory replaces the message history stored for a run.
func (s *Store) SaveHistory(ctx context.Context, workspaceID, threadID, runID string, msgs []*types.Message) error {
	if workspaceID == "" || threadID == "" || runID == "" {
		return types.NewBadRequestError("workspace, thread and run ids are required", nil)
	}
	meta := map[string]string{"messages": fmt.Sprint(len(msgs))}
	return s.put(ctx, s.runNS(workspaceID, threadID, runID), historyKey, msgs, meta)
}

// History returns the message history of a run. A run without history
// returns an empty slice.
func (s *Store) History(ctx context.Context, workspaceID, threadID, runID string) ([]*types.Message, error) {
	var msgs []*types.Message
	err := s.get(ctx, s.runNS(workspaceID, threadID, runID), historyKey, &msgs)
	if errors.Is(err, ErrNotFound) {
		return []*types.Message{}, nil
	}
	return msgs, err
}

// CreateCheckpoint records msgs as a checkpoint of run.
func (s *Store) CreateCheckpoint(ctx context.Context, workspaceID, sessionID, runID, label string, msgs []*types.Message) (*Checkpoint, error) {
	return s.createCheckpoint(ctx, workspaceID, sessionID, runID, label, msgs, CheckpointMetadata{})
}

func (s *Store) createCheckpoint(ctx context.Context, workspaceID, sessionID, runID, label string, msgs []*types.Message, meta CheckpointMetadata) (*Checkpoint, error) {
	if sessionID == "" || runID == "" {
		return nil, types.NewBadRequestError("session and run ids are required", nil)
	}
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	meta.MessageCount = len(msgs)
	cp := &Checkpoint{
		ID:          ulid.Make().String(),
		Label:       label,
		Timestamp:   s.now(),
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		RunID:       runID,
		Messages:    cloneMessages(msgs),
		Metadata:    meta,
	}
	kvMeta := map[string]string{"label": label, "branch": meta.BranchName}
	if err := s.put(ctx, s.runNS(workspaceID, sessionID, runID), checkpointPrefix+cp.ID, cp, kvMeta); err != nil {
		return nil, err
	}
	debugLog.Debugf("Checkpoint %s of run %s (%d messages)", cp.ID, runID, len(msgs))
	return cp, nil
}

// GetCheckpoint finds a checkpoint by id across the user's workspaces.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	if id == "" || strings.ContainsAny(id, "*?[{") {
		return nil, types.NewBadRequestError(fmt.Sprintf("invalid checkpoint id %q", id), nil)
	}
	found, err := search[Checkpoint](ctx, s, kv.Namespace{UserID: s.userID}, checkpointPrefix+id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, types.NewNotFoundError("checkpoint "+id, ErrNotFound)
	}
	return found[0], nil
}

// ListCheckpoints returns the checkpoints of every run of a session,
// oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, workspaceID, sessionID string) ([]*Checkpoint, error) {
	if workspaceID == "" || sessionID == "" {
		return nil, types.NewBadRequestError("workspace and session ids are required", nil)
	}
	cps, err := search[Checkpoint](ctx, s, s.threadNS(workspaceID, sessionID), checkpointPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].ID < cps[j].ID })
	return cps, nil
}

// RestoreCheckpoint copies a checkpoint's messages into a newly allocated
// run of the same session. The source run is never written.
func (s *Store) RestoreCheckpoint(ctx context.Context, id string) (*Restored, error) {
	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	run, err := s.createRun(ctx, cp.WorkspaceID, cp.SessionID, "restore of "+cp.ID, cp.ID)
	if err != nil {
		return nil, err
	}
	if err := s.SaveHistory(ctx, cp.WorkspaceID, cp.SessionID, run.ID, cp.Messages); err != nil {
		return nil, err
	}
	debugLog.Infof("Restored checkpoint %s from run %s into run %s", cp.ID, cp.RunID, run.ID)
	return &Restored{NewRunID: run.ID, SourceRunID: cp.RunID, Checkpoint: cp}, nil
}

// ForkFromCheckpoint restores a checkpoint and records the starting point
// of the new branch as a checkpoint linked to its parent.
func (s *Store) ForkFromCheckpoint(ctx context.Context, id, branchName string) (*Checkpoint, *Restored, error) {
	branchName = strings.TrimSpace(branchName)
	if branchName == "" {
		return nil, nil, types.NewBadRequestError("branch name is required", nil)
	}
	restored, err := s.RestoreCheckpoint(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	src := restored.Checkpoint
	cp, err := s.createCheckpoint(ctx, src.WorkspaceID, src.SessionID, restored.NewRunID, branchName, src.Messages, CheckpointMetadata{
		ParentCheckpointID: src.ID,
		BranchName:         branchName,
	})
	if err != nil {
		return nil, nil, err
	}
	return cp, restored, nil
}

func search[T any](ctx context.Context, s *Store, ns kv.Namespace, pattern string) ([]*T, error) {
	if strings.HasSuffix(pattern, "/") {
		pattern += "*"
	}
	items, err := s.kv.Search(ctx, kv.Query{Namespace: ns, KeyPattern: pattern})
	if err != nil {
		return nil, fmt.Errorf("workspace: search %s: %w", pattern, err)
	}
	out := make([]*T, 0, len(items))
	for _, it := range items {
		v := new(T)
		if err := json.Unmarshal(it.Value, v); err != nil {
			debugLog.Warnf("Skipping corrupt record %s/%s: %v", it.Namespace, it.Key, err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func cloneMessages(msgs []*types.Message) []*types.Message {
	out := make([]*types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}
