// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ErrCorrupt is returned by Check when the integrity pragma reports problems.
var ErrCorrupt = fmt.Errorf("sqlite: database failed integrity check")

// Check runs PRAGMA quick_check on an open database. A healthy database
// returns exactly one row, "ok"; anything else is reported as ErrCorrupt with
// the diagnostic rows attached.
func Check(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA quick_check;")
	if err != nil {
		return fmt.Errorf("sqlite: integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return fmt.Errorf("sqlite: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: read integrity rows: %w", err)
	}

	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no rows returned", ErrCorrupt)
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(results, "; "))
}
