package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
)

// postgres error codes
const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
)

// pqError returns the postgres error behind err, if any.
func pqError(err error) (*pq.Error, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return pqErr, ok
}

// trapNoRowsErr maps "no rows" to notFound and wraps anything else with msg.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where accumulates AND-ed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy keeps the orderings on allowed columns (api field -> column) and falls back to def.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, def string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(clauses) == 0 {
		return " ORDER BY " + def
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func limitOffset(page core.Page, args []interface{}) (string, []interface{}) {
	if page.IsZero() {
		return "", args
	}
	return " LIMIT ? OFFSET ?", append(args, page.Limit(), page.Offset())
}

// selectPage runs a count query and a page query sharing the same FROM/WHERE clause.
func selectPage(ctx context.Context, db sqlx.QueryerContext, dest interface{}, selectCols, from string, w where, order string, page core.Page) (int, error) {
	var total int
	countQ := sqlx.Rebind(sqlx.DOLLAR, "SELECT COUNT(*) "+from+w.String())
	if err := sqlx.GetContext(ctx, db, &total, countQ, w.args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}

	limit, args := limitOffset(page, append([]interface{}{}, w.args...))
	q := sqlx.Rebind(sqlx.DOLLAR, "SELECT "+selectCols+" "+from+w.String()+order+limit)
	if err := sqlx.SelectContext(ctx, db, dest, q, args...); err != nil {
		return 0, errors.Wrap(err, "selecting rows")
	}
	return total, nil
}

// searchPattern builds a case-insensitive ILIKE pattern matching s anywhere.
func searchPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
