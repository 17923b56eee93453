package rda

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestClassifyCanonicalCodePassThrough(t *testing.T) {
	tests := []struct {
		code string
		want ErrorCode
	}{
		{"connection_error", CodeConnectionError},
		{"timeout", CodeTimeout},
		{"server_error", CodeServerError},
		{"rate_limit", CodeRateLimit},
		{"connection_limit", CodeConnectionLimit},
	}

	for _, tt := range tests {
		err := &RemoteError{Code: tt.code, Message: "pre-classified"}
		if got := Classify(err); got != tt.want {
			t.Errorf("Classify(code=%s): expected %s, got %s", tt.code, tt.want, got)
		}
	}
}

func TestClassifySQLStates(t *testing.T) {
	tests := []struct {
		state string
		want  ErrorCode
	}{
		{"08000", CodeConnectionError},
		{"08006", CodeConnectionError},
		{"53300", CodeConnectionLimit},
		{"57014", CodeTimeout},
		{"57P01", CodeConnectionError},
		{"57P03", CodeConnectionError},
		{"XX000", CodeServerError},
	}

	for _, tt := range tests {
		remote := &RemoteError{Code: tt.state, Message: "server said no"}
		if got := Classify(remote); got != tt.want {
			t.Errorf("Classify(RemoteError %s): expected %s, got %s", tt.state, tt.want, got)
		}

		pgErr := &pgconn.PgError{Code: tt.state, Message: "server said no"}
		if got := Classify(pgErr); got != tt.want {
			t.Errorf("Classify(PgError %s): expected %s, got %s", tt.state, tt.want, got)
		}

		pqErr := &pq.Error{Code: pq.ErrorCode(tt.state), Message: "server said no"}
		if got := Classify(pqErr); got != tt.want {
			t.Errorf("Classify(pq.Error %s): expected %s, got %s", tt.state, tt.want, got)
		}
	}
}

func TestClassifyUnrecognizedSQLStateFallsThrough(t *testing.T) {
	err := &RemoteError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	if got := Classify(err); got != CodeUnknown {
		t.Errorf("Expected unknown_error for a constraint violation, got %s", got)
	}
}

func TestClassifyExplicitCodeBeatsMessage(t *testing.T) {
	// The message says timeout but the explicit code wins.
	err := &RemoteError{Code: "53300", Message: "timeout acquiring slot"}
	if got := Classify(err); got != CodeConnectionLimit {
		t.Errorf("Expected connection_limit from the code field, got %s", got)
	}
}

func TestClassifyRetryErrorKeepsLastCode(t *testing.T) {
	err := &RetryError{Attempts: 3, Code: CodeServerError, Cause: errors.New("boom")}
	if got := Classify(err); got != CodeServerError {
		t.Errorf("Expected server_error carried through, got %s", got)
	}
}

func TestClassifyFaultTypes(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != CodeTimeout {
		t.Errorf("Expected timeout for deadline exceeded, got %s", got)
	}
	if got := Classify(context.Canceled); got != CodeTimeout {
		t.Errorf("Expected timeout for cancellation, got %s", got)
	}
	if got := Classify(fmt.Errorf("running query: %w", context.DeadlineExceeded)); got != CodeTimeout {
		t.Errorf("Expected timeout for wrapped deadline, got %s", got)
	}

	dnsTimeout := &net.DNSError{Err: "lookup timed out", IsTimeout: true}
	if got := Classify(dnsTimeout); got != CodeTimeout {
		t.Errorf("Expected timeout for net timeout, got %s", got)
	}

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect refused")}
	if got := Classify(opErr); got != CodeConnectionError {
		t.Errorf("Expected connection_error for net.OpError, got %s", got)
	}
}

func TestClassifyMessageSubstrings(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorCode
	}{
		{"FATAL: too many connections for role", CodeConnectionLimit},
		{"upstream timeout while reading response", CodeTimeout},
		{"request Timed Out after 30s", CodeTimeout},
		{"connection reset by peer", CodeConnectionError},
		{"could not establish connection", CodeConnectionError},
	}

	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Classify(%q): expected %s, got %s", tt.msg, tt.want, got)
		}
	}
}

func TestClassifyStatusCarrier(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{500, CodeServerError},
		{503, CodeServerError},
		{429, CodeRateLimit},
		{408, CodeTimeout},
		{404, CodeUnknown},
	}

	for _, tt := range tests {
		err := &RemoteError{Message: "service said no", Status: tt.status}
		if got := Classify(err); got != tt.want {
			t.Errorf("Classify(status=%d): expected %s, got %s", tt.status, tt.want, got)
		}
	}
}

func TestClassifyUnknown(t *testing.T) {
	if got := Classify(errors.New("???")); got != CodeUnknown {
		t.Errorf("Expected unknown_error, got %s", got)
	}
	if got := Classify(nil); got != CodeUnknown {
		t.Errorf("Expected unknown_error for nil, got %s", got)
	}
}

func TestIsMissingRelation(t *testing.T) {
	missing := []error{
		&RemoteError{Code: "42P01", Message: "relation does not exist"},
		&pgconn.PgError{Code: "42P01", Message: "relation missing"},
		&pq.Error{Code: "42P01", Message: "relation missing"},
		errors.New(`relation "public.profiles" does not exist`),
		errors.New(`Error 1146: Table 'app.profiles' doesn't exist`),
		errors.New("no such table: profiles"),
	}
	for _, err := range missing {
		if !isMissingRelation(err) {
			t.Errorf("Expected missing relation for %v", err)
		}
	}

	present := []error{
		nil,
		errors.New("connection refused"),
		&RemoteError{Code: "08006", Message: "terminated"},
	}
	for _, err := range present {
		if isMissingRelation(err) {
			t.Errorf("Did not expect missing relation for %v", err)
		}
	}
}
