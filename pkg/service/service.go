package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Logger defines the logging interface used by the services.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ErrConfiguration marks errors that abort a whole run before any input is
// touched: an unknown task, a malformed schema or an unusable prompt template.
var ErrConfiguration = errors.New("configuration error")

// ErrInvalidStatus is returned for an input status filter that is not one of
// the four known statuses.
var ErrInvalidStatus = errors.New("invalid status")

// configError wraps err so that errors.Is(err, ErrConfiguration) holds.
func configError(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", ErrConfiguration, fmt.Sprintf(format, args...), err)
}
