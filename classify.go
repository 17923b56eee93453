package rda

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// =====================================
// Error Classification
// =====================================

// ErrorCode is the classified failure code attached to store errors.
// The set is closed; retry policies reference these codes.
type ErrorCode string

const (
	CodeConnectionError ErrorCode = "connection_error"
	CodeTimeout         ErrorCode = "timeout"
	CodeServerError     ErrorCode = "server_error"
	CodeRateLimit       ErrorCode = "rate_limit"
	CodeConnectionLimit ErrorCode = "connection_limit"
	CodeUnknown         ErrorCode = "unknown_error"
)

// RemoteError is the structured error envelope adapters surface for
// remote store failures. Code carries the vendor code (SQLSTATE, driver
// number, or an already-classified ErrorCode string), Status the HTTP
// status when the backend speaks HTTP.
type RemoteError struct {
	Code    string
	Message string
	Detail  string
	Hint    string
	Status  int
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// StatusCode returns the HTTP status carried by the error, zero when unset
func (e *RemoteError) StatusCode() int {
	return e.Status
}

// Classify maps an arbitrary store failure onto the closed ErrorCode
// set. Rules are applied in priority order: explicit vendor code,
// fault type, message substrings, numeric status, then CodeUnknown.
// Whether a code is worth retrying is the policy's business, not the
// classifier's.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := classifyVendorCode(err); ok {
		return code
	}
	if code, ok := classifyFault(err); ok {
		return code
	}
	if code, ok := classifyMessage(err.Error()); ok {
		return code
	}
	if code, ok := classifyStatus(err); ok {
		return code
	}
	return CodeUnknown
}

// classifyVendorCode inspects explicit code fields on known error
// shapes. Recognized SQLSTATEs and canonical codes win outright,
// unrecognized codes fall through to the later rules.
func classifyVendorCode(err error) (ErrorCode, bool) {
	var retryErr *RetryError
	if errors.As(err, &retryErr) && retryErr.Code != "" {
		return retryErr.Code, true
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Code != "" {
		if code, ok := canonicalCode(remoteErr.Code); ok {
			return code, true
		}
		if code, ok := sqlStateCode(remoteErr.Code); ok {
			return code, true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := sqlStateCode(pgErr.Code); ok {
			return code, true
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if code, ok := sqlStateCode(string(pqErr.Code)); ok {
			return code, true
		}
	}

	return "", false
}

// canonicalCode accepts codes that already are classified codes, so
// adapters may pass a pre-classified failure straight through.
func canonicalCode(code string) (ErrorCode, bool) {
	switch ErrorCode(code) {
	case CodeConnectionError, CodeTimeout, CodeServerError,
		CodeRateLimit, CodeConnectionLimit, CodeUnknown:
		return ErrorCode(code), true
	}
	return "", false
}

// sqlStateCode maps the SQLSTATEs that indicate transient
// infrastructure trouble. Constraint and syntax classes stay unmapped
// on purpose, they are never retryable.
func sqlStateCode(state string) (ErrorCode, bool) {
	switch {
	case state == "53300":
		return CodeConnectionLimit, true
	case state == "57014":
		return CodeTimeout, true
	case strings.HasPrefix(state, "08"):
		return CodeConnectionError, true
	case strings.HasPrefix(state, "57P"):
		return CodeConnectionError, true
	case strings.HasPrefix(state, "XX"):
		return CodeServerError, true
	}
	return "", false
}

// classifyFault recognizes failure types from the Go runtime and the
// net stack: cancellation and deadline faults read as timeouts,
// anything else network-shaped reads as a connection error.
func classifyFault(err error) (ErrorCode, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout, true
		}
		return CodeConnectionError, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return CodeConnectionError, true
	}

	return "", false
}

// classifyMessage falls back to substring matching on the rendered
// message. The connection-limit check must run before the broader
// "connection" match.
func classifyMessage(msg string) (ErrorCode, bool) {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "too many connections"):
		return CodeConnectionLimit, true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return CodeTimeout, true
	case strings.Contains(msg, "connection"):
		return CodeConnectionError, true
	}
	return "", false
}

// classifyStatus maps numeric transport statuses when nothing more
// specific matched.
func classifyStatus(err error) (ErrorCode, bool) {
	var carrier interface{ StatusCode() int }
	if !errors.As(err, &carrier) {
		return "", false
	}
	switch status := carrier.StatusCode(); {
	case status >= 500:
		return CodeServerError, true
	case status == 429:
		return CodeRateLimit, true
	case status == 408:
		return CodeTimeout, true
	}
	return "", false
}

// isMissingRelation reports whether err means the queried collection
// does not exist. Connectivity probes use it to tell "reachable but
// table absent" from a real outage. Covers the postgres SQLSTATE plus
// the message shapes of postgres, mysql, and sqlite.
func isMissingRelation(err error) bool {
	if err == nil {
		return false
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Code == "42P01" {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "no such table")
}
