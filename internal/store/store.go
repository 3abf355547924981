// Package store implements the service ports on PostgreSQL through gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadbridge/internal/importer"
	"leadbridge/internal/leads"
	"leadbridge/internal/models"
	"leadbridge/internal/notify"
	"leadbridge/internal/stats"
)

var (
	_ leads.Store       = (*Store)(nil)
	_ stats.Source      = (*Store)(nil)
	_ notify.Outbox     = (*Store)(nil)
	_ importer.Database = (*Store)(nil)
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx leads.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("load %s %v: %w", what, id, err)
}

func locked(db *gorm.DB, lock bool) *gorm.DB {
	if lock {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
