// Package storetest provides store wrappers for exercising failure paths.
package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// ErrInjected is returned by a Faulty store when its failure budget triggers.
var ErrInjected = errors.New("storetest: injected write failure")

// Faulty wraps a Store and fails the Nth task write (1-based) inside any
// transaction. FailAt <= 0 disables injection.
type Faulty struct {
	store.Store

	mu     sync.Mutex
	FailAt int
	writes int
}

// NewFaulty wraps s so the failAt-th UpdateTask or CreateTask call fails.
func NewFaulty(s store.Store, failAt int) *Faulty {
	return &Faulty{Store: s, FailAt: failAt}
}

func (f *Faulty) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.Update(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, parent: f})
	})
}

func (f *Faulty) tick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.FailAt > 0 && f.writes == f.FailAt {
		return ErrInjected
	}
	return nil
}

type faultyTx struct {
	store.Tx
	parent *Faulty
}

func (tx *faultyTx) UpdateTask(ctx context.Context, t types.Task) error {
	if err := tx.parent.tick(); err != nil {
		return err
	}
	return tx.Tx.UpdateTask(ctx, t)
}

func (tx *faultyTx) CreateTask(ctx context.Context, t types.Task) error {
	if err := tx.parent.tick(); err != nil {
		return err
	}
	return tx.Tx.CreateTask(ctx, t)
}
