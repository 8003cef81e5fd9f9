package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Upsert describes a keyed merge into Table. Columns not in Keys are
// overwritten on conflict.
type Upsert struct {
	Table   string
	Columns []string
	Keys    []string
}

func (u Upsert) validate() error {
	switch {
	case len(u.Columns) == 0:
		return eris.New("db: upsert: no columns specified")
	case len(u.Keys) == 0:
		return eris.New("db: upsert: no conflict keys specified")
	}
	for _, k := range u.Keys {
		if !slices.Contains(u.Columns, k) {
			return eris.Errorf("db: upsert: key %q is not a column", k)
		}
	}
	return nil
}

// stage is the temp table rows are copied into before the merge.
func (u Upsert) stage() pgx.Identifier {
	return pgx.Identifier{"_stage_" + strings.ReplaceAll(u.Table, ".", "_")}
}

// statements returns the CREATE TEMP TABLE and INSERT ... ON CONFLICT SQL.
func (u Upsert) statements() (create, merge string) {
	target := identifier(u.Table).Sanitize()
	stage := u.stage().Sanitize()
	cols := quoteAndJoin(u.Columns)

	var sets []string
	for _, c := range u.Columns {
		if slices.Contains(u.Keys, c) {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	create = fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stage, target)
	merge = fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, stage, quoteAndJoin(u.Keys), action)
	return create, merge
}

// BulkUpsert copies rows into a staging table and merges them into the
// target in one transaction. It returns the number of rows merged.
func BulkUpsert(ctx context.Context, pool Pool, u Upsert, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}
	create, merge := u.statements()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", u.Table)
	}
	if _, err := tx.CopyFrom(ctx, u.stage(), u.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy %s", u.Table)
	}
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge %s", u.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// identifier splits a possibly schema-qualified table name.
func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
