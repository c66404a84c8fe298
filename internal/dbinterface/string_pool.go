// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLite's default SQLITE_MAX_VARIABLE_NUMBER is 999
const maxParams = 900

// InternStrings stores each value once in string_pool and returns the ids in input order.
// Empty values are rejected.
func InternStrings(ctx context.Context, tx TxQuerier, values ...string) ([]int64, error) {
	if len(values) == 0 {
		return []int64{}, nil
	}

	unique := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		if v == "" {
			return nil, fmt.Errorf("value at index %d is empty", i)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	for start := 0; start < len(unique); start += maxParams {
		chunk := unique[start:min(start+maxParams, len(unique))]
		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		query := "INSERT OR IGNORE INTO string_pool (value) VALUES " + valueTuples(len(chunk))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to intern strings: %w", err)
		}
	}

	ids, err := lookupIDs(ctx, tx, unique)
	if err != nil {
		return nil, err
	}

	result := make([]int64, len(values))
	for i, v := range values {
		id, ok := ids[v]
		if !ok {
			return nil, fmt.Errorf("failed to get ID for interned string %q", v)
		}
		result[i] = id
	}
	return result, nil
}

// GetStrings resolves ids back to their values, in input order.
func GetStrings(ctx context.Context, tx TxQuerier, ids ...int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	values := make(map[int64]string, len(ids))
	for start := 0; start < len(ids); start += maxParams {
		chunk := ids[start:min(start+maxParams, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := tx.QueryContext(ctx, "SELECT id, value FROM string_pool WHERE id IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query string pool: %w", err)
		}
		for rows.Next() {
			var id int64
			var value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan string pool row: %w", err)
			}
			values[id] = value
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating string pool rows: %w", err)
		}
	}

	result := make([]string, len(ids))
	for i, id := range ids {
		v, ok := values[id]
		if !ok {
			return nil, fmt.Errorf("string pool id %d: %w", id, sql.ErrNoRows)
		}
		result[i] = v
	}
	return result, nil
}

func lookupIDs(ctx context.Context, tx TxQuerier, values []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(values))
	for start := 0; start < len(values); start += maxParams {
		chunk := values[start:min(start+maxParams, len(values))]
		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		rows, err := tx.QueryContext(ctx, "SELECT id, value FROM string_pool WHERE value IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query string pool: %w", err)
		}
		for rows.Next() {
			var id int64
			var value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan string pool row: %w", err)
			}
			ids[value] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating string pool rows: %w", err)
		}
	}
	return ids, nil
}

func valueTuples(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, "(?)"...)
	}
	return string(b)
}
