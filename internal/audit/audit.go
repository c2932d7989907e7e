// Package audit appends one record per core state transition. Failures here
// are logged by callers and never unwind a committed transition.
package audit

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/Ishaan29/terpspark-backend/internal/models"
)

// Entry is what a core operation hands the sink.
type Entry struct {
	Action     string
	ActorID    string
	ActorName  string
	TargetType string
	TargetID   string
	Details    string
	Metadata   map[string]string
}

type Sink struct {
	Bun *bun.DB
}

func NewSink(bunDB *bun.DB) *Sink {
	return &Sink{Bun: bunDB}
}

func (s *Sink) Record(ctx context.Context, e Entry) error {
	row := models.AuditLog{
		Action:     e.Action,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    e.Details,
		Metadata:   e.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.Bun.NewInsert().Model(&row).Exec(ctx)
	return err
}
