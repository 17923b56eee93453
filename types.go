// Package rda provides a resilient data-access layer over remote
// relational stores reached through fluent query-builder handles,
// with managed connections, retries, and a closed error taxonomy.
package rda

import "time"

// =====================================
// Core Types and Constants
// =====================================

// ConnState represents the lifecycle state of a managed connection
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateConnecting   ConnState = "connecting"
	StateDisconnected ConnState = "disconnected"
)

// CredentialClass is the best-effort classification of the configured credential
type CredentialClass string

const (
	CredentialAnon        CredentialClass = "anon"
	CredentialServiceRole CredentialClass = "service_role"
	CredentialUnknown     CredentialClass = "unknown"
)

// ConnectionConfig represents remote store connection configuration.
// It is immutable once handed to a Manager.
type ConnectionConfig struct {
	// Remote endpoint and credential. Both are required unless an
	// already-built store is adopted via ExistingStore.
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Credential string `json:"credential" yaml:"credential"`

	// ExistingStore, when set, is adopted as-is and trusted to be live.
	ExistingStore Store `json:"-" yaml:"-"`

	// Session behavior forwarded to the store factory.
	AutoRefresh    bool `json:"auto_refresh" yaml:"auto_refresh"`
	PersistSession bool `json:"persist_session" yaml:"persist_session"`

	// Schema selects the remote namespace, empty means the store default.
	Schema string `json:"schema" yaml:"schema"`

	// Headers are forwarded verbatim on every remote call.
	Headers map[string]string `json:"headers" yaml:"headers"`

	// ProbeCollections is the candidate chain tried by connectivity checks.
	// Defaults to profiles, users, settings.
	ProbeCollections []string `json:"probe_collections" yaml:"probe_collections"`
}

// ConnStats is a point-in-time snapshot of a Manager's connection
type ConnStats struct {
	Status          ConnState       `json:"status"`
	LastCheckedAt   time.Time       `json:"last_checked_at"`
	ResponseTime    time.Duration   `json:"response_time,omitempty"`
	Endpoint        string          `json:"endpoint"`
	CredentialClass CredentialClass `json:"credential_class"`
}

// RetryPolicy controls how failed store operations are retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt with no retry.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialDelay seeds the exponential backoff schedule.
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// RetryableCodes lists the classified codes worth retrying.
	RetryableCodes []ErrorCode `json:"retryable_codes" yaml:"retryable_codes"`
}

// DefaultRetryPolicy returns the stock policy: three retries with
// exponential backoff from 1s capped at 30s, retrying transient codes only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableCodes: []ErrorCode{
			CodeConnectionError,
			CodeTimeout,
			CodeServerError,
			CodeRateLimit,
			CodeConnectionLimit,
		},
	}
}

// Operator represents query operators
type Operator string

const (
	OpEqual              Operator = "="
	OpNotEqual           Operator = "!="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpLike               Operator = "LIKE"
	OpIn                 Operator = "IN"
	OpIsNull             Operator = "IS NULL"
	OpIsNotNull          Operator = "IS NOT NULL"
)

// Order represents sorting order
type Order struct {
	Field     string
	Direction OrderDirection
}

// OrderDirection represents sort direction
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// SortAsc and SortDesc are the caller-facing sort order spellings
// accepted by Filter.SortOrder.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter narrows and pages a List call. Zero-valued fields fall back to
// the repository defaults: page 1, limit 10, sorted by the id column
// descending.
type Filter struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	SortBy     string      `json:"sort_by"`
	SortOrder  string      `json:"sort_order"`
	Conditions []Condition `json:"-"`
}

// Pagination describes the window a ListResult covers
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ListResult is the envelope returned by Repository.List. List never
// fails with an error value; failures are reported inside the envelope.
type ListResult[T any] struct {
	Success    bool       `json:"success"`
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
	Error      string     `json:"error,omitempty"`
}

// IDFormat selects how Repository identifiers are validated
type IDFormat string

const (
	// IDFormatUUID requires canonical UUID identifiers (versions 1-5).
	IDFormatUUID IDFormat = "uuid"
	// IDFormatAny accepts any non-empty identifier.
	IDFormatAny IDFormat = "any"
)

// Default column names and filter values applied by Repository.
const (
	DefaultIDColumn      = "id"
	DefaultDeletedColumn = "deleted_at"
	DefaultCreatedColumn = "created_at"
	DefaultUpdatedColumn = "updated_at"
	DefaultPage          = 1
	DefaultLimit         = 10
)

// RepositoryConfig binds a Repository to a collection and fixes its
// behavior. It is read once at construction and never mutated.
type RepositoryConfig struct {
	// Collection is the remote collection name. Empty means inferred
	// from the entity type name.
	Collection string

	// IDColumn is the identifier column, defaults to "id".
	IDColumn string

	// IDFormat controls identifier validation, defaults to IDFormatUUID.
	IDFormat IDFormat

	// SoftDelete switches Delete to marking DeletedColumn instead of
	// removing rows, and hides marked rows from every read path.
	SoftDelete    bool
	DeletedColumn string

	// Timestamp columns stamped on Create and Update.
	CreatedColumn string
	UpdatedColumn string

	// Retry overrides the default retry policy when non-nil.
	Retry *RetryPolicy

	// CacheTime is honored by the rdacache wrapper, zero disables caching.
	CacheTime time.Duration

	// Scope is applied to every read and mutation query after the
	// soft-delete predicate. It may extend or replace the query.
	Scope func(*Query) *Query

	// BeforeInsert and BeforeUpdate transform the outgoing row data
	// before timestamp stamping.
	BeforeInsert func(map[string]interface{}) map[string]interface{}
	BeforeUpdate func(map[string]interface{}) map[string]interface{}
}
