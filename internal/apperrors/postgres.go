package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqUndefinedTable      = "42P01"
	pqUndefinedColumn     = "42703"
)

// known column additions that older deployments may be missing
var columnHints = map[string]string{
	"quoted_amount":     `ALTER TABLE submissions ADD COLUMN IF NOT EXISTS quoted_amount bigint;`,
	"revision_notes":    `ALTER TABLE submissions ADD COLUMN IF NOT EXISTS revision_notes text;`,
	"stripe_session_id": `ALTER TABLE submissions ADD COLUMN IF NOT EXISTS stripe_session_id text;`,
	"is_visible":        `ALTER TABLE plans ADD COLUMN IF NOT EXISTS is_visible boolean DEFAULT true;`,
}

// Classify maps driver errors onto domain errors. Errors that are not
// postgres errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pqForeignKeyViolation:
		return WithCause(ErrReferenced, err)
	case pqUniqueViolation:
		return WithCause(ErrConflict, err)
	case pqUndefinedTable, pqUndefinedColumn:
		schemaErr := WithCause(ErrSchemaMissing, err)
		schemaErr.Hint = SchemaHint(pqErr.Message)
		return schemaErr
	}
	return err
}

// SchemaHint returns the statement an operator should run for a missing
// table or column message.
func SchemaHint(message string) string {
	for column, stmt := range columnHints {
		if strings.Contains(message, column) {
			return stmt
		}
	}
	return fmt.Sprintf("run `staging-studio migrate` to provision the schema (%s)", message)
}
