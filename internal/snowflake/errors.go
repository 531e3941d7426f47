package snowflake

import (
	"context"
	stderrors "errors"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	"ddbridge/pkg/errors"
)

// Snowflake error numbers the backend distinguishes.
const (
	errNumSyntax        = 1003
	errNumAlreadyExists = 2002
	errNumNotFound      = 2003
	errNumPrivileges    = 3001
)

// classify maps a driver error onto the application error codes.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrCodeSQLTimeout, "Snowflake statement timed out").
			WithContext("query", what)
	}

	var sfErr *sf.SnowflakeError
	if stderrors.As(err, &sfErr) {
		msg := strings.ToLower(sfErr.Message)
		switch {
		case sfErr.Number == errNumNotFound || sfErr.SQLState == "42S02" || strings.Contains(msg, "does not exist"):
			return errors.NotFound(what, err)
		case sfErr.Number == errNumAlreadyExists || strings.Contains(msg, "already exists"):
			return errors.Wrap(err, errors.ErrCodeAlreadyExists, "object already exists").
				WithContext("object", what)
		case sfErr.Number == errNumPrivileges || sfErr.SQLState == "42501":
			return errors.Wrap(err, errors.ErrCodeSQLPermission, "insufficient privileges").
				WithContext("query", what)
		case sfErr.Number == errNumSyntax || sfErr.SQLState == "42000" || strings.Contains(msg, "syntax error"):
			return errors.MalformedQuery(what, err)
		}
		return errors.SQLError("Snowflake statement failed", what, err).
			WithContext("query_id", sfErr.QueryID)
	}

	return errors.SQLError("Snowflake statement failed", what, err)
}
