// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openPool(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE string_pool (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)
	return db
}

func TestInternStringsDeduplicates(t *testing.T) {
	db := openPool(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	values := []string{"https://a.example/", "https://b.example/", "https://a.example/"}
	ids, err := InternStrings(ctx, tx, values...)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])

	again, err := InternStrings(ctx, tx, "https://b.example/")
	require.NoError(t, err)
	assert.Equal(t, ids[1], again[0])

	resolved, err := GetStrings(ctx, tx, ids...)
	require.NoError(t, err)
	assert.Equal(t, values, resolved)

	var count int
	require.NoError(t, tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM string_pool").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestInternStringsRejectsEmpty(t *testing.T) {
	db := openPool(t)

	_, err := InternStrings(context.Background(), db, "ok", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestInternStringsChunks(t *testing.T) {
	db := openPool(t)
	ctx := context.Background()

	values := make([]string, maxParams+50)
	for i := range values {
		values[i] = fmt.Sprintf("value-%d", i)
	}

	ids, err := InternStrings(ctx, db, values...)
	require.NoError(t, err)
	require.Len(t, ids, len(values))

	resolved, err := GetStrings(ctx, db, ids...)
	require.NoError(t, err)
	assert.Equal(t, values, resolved)
}

func TestGetStringsUnknownID(t *testing.T) {
	db := openPool(t)

	_, err := GetStrings(context.Background(), db, 42)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
