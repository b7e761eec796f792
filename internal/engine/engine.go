// Package engine implements the task graph and workflow core: status
// transitions, the blocking-dependency graph with cycle prevention,
// ownership contention, shallow progress rollup, sub-project activity
// derivation, and the audit event trail. Every mutation and its audit
// events commit as one store transaction; derived values (actionable,
// display status, is_active, progress) are computed on read and never
// persisted.
package engine

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/gantry-io/gantry/internal/events"
	"github.com/gantry-io/gantry/internal/lock"
	"github.com/gantry-io/gantry/internal/logging"
	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

type Engine struct {
	store *store.Store
	locks *lock.MutexMap
	bus   *events.Bus
	log   *logging.Logger

	// reads collapses concurrent identical derived-state queries
	// (actionable lists, active sub-projects) into one store round trip.
	reads singleflight.Group
}

func New(st *store.Store, bus *events.Bus, logger *logging.Logger) *Engine {
	return &Engine{
		store: st,
		locks: lock.NewMutexMap(),
		bus:   bus,
		log:   logger,
	}
}

// mutate runs fn in one store transaction and, on commit, publishes the
// audit events fn recorded. The store write and its events are atomic; bus
// delivery is best-effort and strictly after commit.
func (e *Engine) mutate(ctx context.Context, fn func(tx *store.Tx, rec *recorder) error) error {
	rec := &recorder{}
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		return fn(tx, rec)
	})
	if err != nil {
		return err
	}
	if e.bus != nil {
		for _, ev := range rec.events {
			e.bus.Publish(events.Notice{ProjectID: rec.projectID, Event: ev})
		}
	}
	return nil
}

// recorder accumulates the audit events written inside one transaction so
// they can be published once the transaction commits. projectID scopes the
// resulting bus notices.
type recorder struct {
	projectID int64
	events    []model.Event
}

func (r *recorder) add(ctx context.Context, tx *store.Tx, ev model.Event) error {
	if err := tx.InsertEvent(ctx, &ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

func strPtr(s string) *string { return &s }
