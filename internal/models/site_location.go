// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/ztdl/internal/dbinterface"
)

var ErrSiteLocationNotFound = errors.New("site location not found")

// SiteLocation is the last known address of the indexing site.
type SiteLocation struct {
	CurrentURL     string     `json:"currentUrl"`
	URLHistory     []string   `json:"urlHistory"`
	LastCheckedAt  *time.Time `json:"lastChecked,omitempty"`
	ResponseTimeMs int64      `json:"responseTime"`
}

type SiteLocationStore struct {
	db dbinterface.Querier
}

func NewSiteLocationStore(db dbinterface.Querier) *SiteLocationStore {
	return &SiteLocationStore{db: db}
}

// Get returns the stored location, or ErrSiteLocationNotFound before the first Save.
func (s *SiteLocationStore) Get(ctx context.Context) (*SiteLocation, error) {
	var (
		urlID     int64
		checkedAt sql.NullInt64
		loc       SiteLocation
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT current_url_id, last_checked_at, response_time_ms
		FROM site_location
		WHERE id = 1
	`).Scan(&urlID, &checkedAt, &loc.ResponseTimeMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site location: %w", err)
	}

	if checkedAt.Valid {
		t := time.UnixMilli(checkedAt.Int64).UTC()
		loc.LastCheckedAt = &t
	}

	historyIDs, err := s.historyIDs(ctx)
	if err != nil {
		return nil, err
	}

	values, err := dbinterface.GetStrings(ctx, s.db, append([]int64{urlID}, historyIDs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site location urls: %w", err)
	}
	loc.CurrentURL = values[0]
	loc.URLHistory = values[1:]

	return &loc, nil
}

func (s *SiteLocationStore) historyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url_id FROM site_location_history ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to load site location history: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save replaces the stored location and its history in one transaction.
func (s *SiteLocationStore) Save(ctx context.Context, loc *SiteLocation) error {
	if loc == nil || loc.CurrentURL == "" {
		return errors.New("site location url is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids, err := dbinterface.InternStrings(ctx, tx, append([]string{loc.CurrentURL}, loc.URLHistory...)...)
	if err != nil {
		return err
	}

	var checkedAt sql.NullInt64
	if loc.LastCheckedAt != nil {
		checkedAt = sql.NullInt64{Int64: loc.LastCheckedAt.UnixMilli(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO site_location (id, current_url_id, last_checked_at, response_time_ms, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_url_id = excluded.current_url_id,
			last_checked_at = excluded.last_checked_at,
			response_time_ms = excluded.response_time_ms,
			updated_at = excluded.updated_at
	`, ids[0], checkedAt, loc.ResponseTimeMs, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save site location: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM site_location_history"); err != nil {
		return fmt.Errorf("failed to reset site location history: %w", err)
	}
	for pos, id := range ids[1:] {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO site_location_history (position, url_id) VALUES (?, ?)", pos, id); err != nil {
			return fmt.Errorf("failed to save site location history: %w", err)
		}
	}

	return tx.Commit()
}
