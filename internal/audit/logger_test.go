package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records []*Record
	err     error
}

func (s *memStore) StoreCallLog(_ context.Context, record *Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func TestLoggerLog(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the record", func(t *testing.T) {
		store := &memStore{}
		l := NewLogger(store, nil)

		l.Log(ctx, NewRecord("GET", "/status").WithStatus(200))
		require.Len(t, store.records, 1)
		assert.Equal(t, "/status", store.records[0].Endpoint)
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		l := NewLogger(&memStore{err: errors.New("down")}, nil)
		assert.NotPanics(t, func() {
			l.Log(ctx, NewRecord("GET", "/status"))
		})
	})

	t.Run("nil store only mirrors to the app log", func(t *testing.T) {
		l := NewLogger(nil, nil)
		assert.NotPanics(t, func() {
			l.Log(ctx, NewRecord("GET", "/status"))
		})
	})

	t.Run("nil record is ignored", func(t *testing.T) {
		store := &memStore{}
		l := NewLogger(store, nil)
		l.Log(ctx, nil)
		assert.Empty(t, store.records)
	})
}
