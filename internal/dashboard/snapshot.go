package dashboard

import (
	"context"
	"sync/atomic"

	"fundingflow/models"
)

// Store holds the latest published snapshot. Publish replaces it wholesale so
// readers never observe a partially built cycle.
type Store struct {
	latest atomic.Pointer[models.Snapshot]
}

func NewStore() *Store {
	s := &Store{}
	empty := models.EmptySnapshot()
	s.latest.Store(&empty)
	return s
}

func (s *Store) Publish(_ context.Context, snap models.Snapshot) error {
	c := snap.Clone()
	s.latest.Store(&c)
	return nil
}

// Latest returns a copy of the current snapshot.
func (s *Store) Latest() models.Snapshot {
	return s.latest.Load().Clone()
}
