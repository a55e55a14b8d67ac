package core

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

const checkpointDir = "checkpoints"

// Checkpoint is a saved interactive session.
type Checkpoint struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	Chapter        int             `json:"chapter"`
	Total          int             `json:"total"`
	Timestamp      time.Time       `json:"timestamp"`
	ResumeCount    int             `json:"resume_count"`
	LastResumeTime *time.Time      `json:"last_resume_time,omitempty"`
	Session        json.RawMessage `json:"session"`
}

type CheckpointManager struct {
	storage Storage
}

func NewCheckpointManager(storage Storage) *CheckpointManager {
	return &CheckpointManager{
		storage: storage,
	}
}

func checkpointPath(id string) string {
	return path.Join(checkpointDir, id+".json")
}

// Save writes the session under its ID, keeping the resume count of any
// earlier checkpoint for the same session.
func (cm *CheckpointManager) Save(ctx context.Context, s *Session) error {
	s.mu.Lock()
	body, err := json.Marshal(s)
	cp := &Checkpoint{
		ID:        s.ID,
		State:     s.State,
		Chapter:   s.Current,
		Total:     s.Total,
		Timestamp: time.Now(),
		Session:   body,
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if prev, err := cm.Load(ctx, s.ID); err == nil {
		cp.ResumeCount = prev.ResumeCount
		cp.LastResumeTime = prev.LastResumeTime
	}
	return cm.write(ctx, cp)
}

func (cm *CheckpointManager) write(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	return cm.storage.Save(ctx, checkpointPath(cp.ID), data)
}

func (cm *CheckpointManager) Load(ctx context.Context, id string) (*Checkpoint, error) {
	p := checkpointPath(id)
	if !cm.storage.Exists(ctx, p) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	data, err := cm.storage.Load(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint: %w", err)
	}
	return &cp, nil
}

// Restore loads a checkpoint, binds its session to p and records the
// resume.
func (cm *CheckpointManager) Restore(ctx context.Context, id string, p *Pipeline) (*Session, error) {
	cp, err := cm.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := RestoreSession(cp.Session, p)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	cp.ResumeCount++
	cp.LastResumeTime = &now
	if err := cm.write(ctx, cp); err != nil {
		return nil, err
	}
	p.logger.Info("session resumed",
		"session_id", s.ID,
		"state", s.State,
		"chapter", s.Current,
		"resume_count", cp.ResumeCount)
	return s, nil
}

// List returns saved checkpoints, newest first.
func (cm *CheckpointManager) List(ctx context.Context) ([]*Checkpoint, error) {
	files, err := cm.storage.List(ctx, path.Join(checkpointDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	out := make([]*Checkpoint, 0, len(files))
	for _, f := range files {
		id := strings.TrimSuffix(path.Base(f), ".json")
		cp, err := cm.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (cm *CheckpointManager) Delete(ctx context.Context, id string) error {
	return cm.storage.Delete(ctx, checkpointPath(id))
}
