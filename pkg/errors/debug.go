package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the order flows branch on.
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateCheckViolation      = "23514"
	SQLStateNotNullViolation    = "23502"
	SQLStateForeignKeyViolation = "23503"
)

// ErrorDump is the log-friendly breakdown of an error chain. Database fields
// are filled for pgx, lib/pq and SQLite errors alike; SQLite constraint
// failures are mapped onto the equivalent SQLSTATE.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Driver       string `json:"driver,omitempty"`
	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

var (
	sqliteConstraintRe = regexp.MustCompile(`(UNIQUE|CHECK|NOT NULL|FOREIGN KEY) constraint failed(?:: (.+?))?(?: \(\d+\))?$`)
	pgDuplicateRe      = regexp.MustCompile(`duplicate key value violates unique constraint "([^"]+)"`)
)

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.Driver = "pgx"
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.Driver = "pq"
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
		return d
	}

	dumpFromText(&d, err)
	return d
}

// dumpFromText covers drivers that only report a message: SQLite in tests and
// local dev, and postgres errors that were flattened to strings upstream.
func dumpFromText(d *ErrorDump, err error) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if m := sqliteConstraintRe.FindStringSubmatch(msg); m != nil {
			d.Driver = "sqlite"
			d.PGMessage = m[0]
			d.PGCode = sqliteStates[m[1]]
			target := strings.TrimSpace(m[2])
			d.PGConstraint = target
			// UNIQUE and NOT NULL name table.column; CHECK names the expression.
			if table, column, ok := strings.Cut(target, "."); ok && !strings.ContainsAny(target, " ,") {
				d.PGTable = table
				d.PGColumn = column
			}
			return
		}
		if m := pgDuplicateRe.FindStringSubmatch(msg); m != nil {
			d.PGCode = SQLStateUniqueViolation
			d.PGConstraint = m[1]
			d.PGMessage = m[0]
			return
		}
	}
}

var sqliteStates = map[string]string{
	"UNIQUE":      SQLStateUniqueViolation,
	"CHECK":       SQLStateCheckViolation,
	"NOT NULL":    SQLStateNotNullViolation,
	"FOREIGN KEY": SQLStateForeignKeyViolation,
}

// Fields flattens the dump for structured logging, leaving out empty
// database fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	for key, value := range map[string]string{
		"db_driver":     d.Driver,
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
