package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/linkctl/internal/store"
)

// StorageKey is the fixed key the session record is stored under.
const StorageKey = "auth"

// Persister loads and saves the session record.
type Persister interface {
	// LoadSession returns the stored record, or the zero Session if none.
	LoadSession(ctx context.Context) (Session, error)
	// SaveSession replaces the stored record.
	SaveSession(ctx context.Context, s Session) error
}

// StorePersister keeps the session as JSON in a store.Store.
type StorePersister struct {
	st *store.Store
}

// NewStorePersister returns a Persister backed by st.
func NewStorePersister(st *store.Store) *StorePersister {
	return &StorePersister{st: st}
}

// LoadSession implements Persister.
func (p *StorePersister) LoadSession(ctx context.Context) (Session, error) {
	raw, err := p.st.Get(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode stored session: %w", err)
	}
	return s, nil
}

// SaveSession implements Persister. A zero session deletes the record.
func (p *StorePersister) SaveSession(ctx context.Context, s Session) error {
	if s.IsZero() {
		return p.st.Delete(ctx, StorageKey)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return p.st.Put(ctx, StorageKey, raw)
}

type nopPersister struct{}

func (nopPersister) LoadSession(context.Context) (Session, error) { return Session{}, nil }
func (nopPersister) SaveSession(context.Context, Session) error { return nil }
