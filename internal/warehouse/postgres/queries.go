package postgres

import (
	"fmt"
	"regexp"
	"strings"
)

// queryHasColumn checks for an optional column via information_schema.
// Unquoted DDL identifiers are folded to lower case by postgres, so the
// comparison is case-insensitive.
const queryHasColumn = `
	SELECT EXISTS (
		SELECT FROM information_schema.columns
		WHERE lower(table_name) = lower($1)
		  AND lower(column_name) = lower($2)
	)
`

// identPattern matches the only identifiers this package will interpolate
// into SQL. Table and column names come from package constants, never from
// input data; this is a guard against programming mistakes.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) bool {
	return identPattern.MatchString(name)
}

func truncateQuery(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s", table)
}

func insertQuery(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
}
