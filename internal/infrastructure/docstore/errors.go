package docstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("service unavailable")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Code is the error class reported to callers of Add and Subscribe.
type Code string

const (
	CodePermissionDenied Code = "permission-denied"
	CodeUnavailable      Code = "unavailable"
	CodeUnknown          Code = "unknown"
)

// CodeOf classifies err. nil maps to CodeUnknown.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	}
	return CodeUnknown
}

// classify wraps driver and network failures with the matching sentinel.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"), pgErr.Code == "53300":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
