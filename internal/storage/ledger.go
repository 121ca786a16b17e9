// Package storage holds the idempotency ledger: the set of identifiers that
// have already been published.
package storage

import (
	"context"
	"strings"
)

// Ledger is an ordered set of published identifiers. Contains answers from
// the snapshot taken by Load; mutations are persisted immediately.
type Ledger interface {
	Load(ctx context.Context) error
	Contains(identifier string) bool
	// Add reports false when identifier was already present.
	Add(ctx context.Context, identifier string) (bool, error)
	// Remove reports false when identifier was absent.
	Remove(ctx context.Context, identifier string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Search(ctx context.Context, keyword string) ([]string, error)
	Count(ctx context.Context) (int, error)
	// Clear removes everything and returns how many entries were dropped.
	Clear(ctx context.Context) (int, error)
	Close() error
}

func matchKeyword(ids []string, keyword string) []string {
	keyword = strings.ToLower(keyword)
	out := []string{}
	for _, id := range ids {
		if strings.Contains(strings.ToLower(id), keyword) {
			out = append(out, id)
		}
	}
	return out
}
