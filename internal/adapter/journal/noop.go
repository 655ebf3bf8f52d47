package journal

import (
	"context"

	"finadvisor/internal/domain"
)

// Noop is the journal used when journaling is disabled.
type Noop struct{}

func (Noop) Record(context.Context, domain.RunRecord) error { return nil }

func (Noop) Recent(context.Context, int) ([]domain.RunRecord, error) { return nil, nil }

func (Noop) Close() error { return nil }

var _ domain.RunJournal = Noop{}
