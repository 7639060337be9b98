// Package recents remembers which vehicles and customers a user picked
// last, most recent first.
package recents

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Limit is the number of ids kept per list.
const Limit = 5

var ErrNotFound = errors.New("key not found")

type Kind string

const (
	Vehicles  Kind = "vehicles"
	Customers Kind = "customers"
)

func (k Kind) Valid() bool {
	return k == Vehicles || k == Customers
}

// Store is a key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

func key(user string, kind Kind) string {
	return "recents:" + string(kind) + ":" + user
}

func (s *Service) List(ctx context.Context, user string, kind Kind) ([]int64, error) {
	b, err := s.store.Get(ctx, key(user, kind))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []int64{}, nil
		}
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		// a corrupt entry is dropped rather than blocking the form
		return []int64{}, nil
	}
	return ids, nil
}

// Add moves id to the front of the list and returns the new list.
func (s *Service) Add(ctx context.Context, user string, kind Kind, id int64) ([]int64, error) {
	ids, err := s.List(ctx, user, kind)
	if err != nil {
		return nil, err
	}

	ids = Push(ids, id)
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, key(user, kind), b); err != nil {
		return nil, fmt.Errorf("store recents: %w", err)
	}
	return ids, nil
}

// Push puts id first, removes an earlier occurrence and caps the list at
// Limit entries.
func Push(ids []int64, id int64) []int64 {
	out := make([]int64, 0, Limit)
	out = append(out, id)
	for _, existing := range ids {
		if len(out) == Limit {
			break
		}
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
