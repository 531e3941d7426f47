package bigquery

import (
	stderrors "errors"
	"net/http"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"ddbridge/pkg/errors"
)

// classify maps BigQuery API failures onto application error codes. what
// names the object or query text involved.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest:
			return errors.MalformedQuery(what, err)
		case http.StatusNotFound:
			return errors.NotFound(what, err)
		case http.StatusConflict:
			return errors.Wrap(err, errors.ErrCodeAlreadyExists, what+" already exists")
		case http.StatusForbidden, http.StatusUnauthorized:
			return errors.Wrap(err, errors.ErrCodeSQLPermission, "permission denied on "+what)
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "BigQuery unavailable").AsRecoverable()
		}
	}

	var jerr *bq.Error
	if stderrors.As(err, &jerr) {
		switch jerr.Reason {
		case "invalidQuery", "invalid":
			return errors.MalformedQuery(what, err)
		case "notFound":
			return errors.NotFound(what, err)
		case "duplicate":
			return errors.Wrap(err, errors.ErrCodeAlreadyExists, what+" already exists")
		case "accessDenied":
			return errors.Wrap(err, errors.ErrCodeSQLPermission, "permission denied on "+what)
		}
	}

	return errors.Wrap(err, errors.ErrCodeSQLExecution, "BigQuery request failed").WithContext("object", what)
}
