package rda

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// =====================================
// Generic Repository
// =====================================

// uuidPattern matches canonical UUIDs, versions 1 through 5 with an
// RFC 4122 variant nibble.
var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Repository provides uniform CRUD, pagination, and soft-delete
// semantics over one collection of T. Every remote call runs through
// the retry executor; failures come back classified and wrapped in the
// package error taxonomy. The store handle is fetched from the Manager
// per attempt, so operations pick up a fresh handle after a reconnect.
type Repository[T any] struct {
	manager    *Manager
	config     RepositoryConfig
	collection string
	executor   *Executor
	logger     zerolog.Logger
	clock      Clock
}

// RepositoryOption configures a Repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	logger *zerolog.Logger
	clock  Clock
}

// WithRepositoryLogger overrides the logger inherited from the Manager
func WithRepositoryLogger(logger zerolog.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = &logger
	}
}

// WithRepositoryClock overrides the clock inherited from the Manager
func WithRepositoryClock(clock Clock) RepositoryOption {
	return func(o *repositoryOptions) {
		o.clock = clock
	}
}

// NewRepository binds a Repository to a Manager's store handle. Empty
// config fields fall back to defaults; an empty collection name is
// inferred from T's type name.
func NewRepository[T any](manager *Manager, config RepositoryConfig, opts ...RepositoryOption) *Repository[T] {
	options := repositoryOptions{
		clock: manager.clock,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if config.IDColumn == "" {
		config.IDColumn = DefaultIDColumn
	}
	if config.IDFormat == "" {
		config.IDFormat = IDFormatUUID
	}
	if config.DeletedColumn == "" {
		config.DeletedColumn = DefaultDeletedColumn
	}
	if config.CreatedColumn == "" {
		config.CreatedColumn = DefaultCreatedColumn
	}
	if config.UpdatedColumn == "" {
		config.UpdatedColumn = DefaultUpdatedColumn
	}

	collection := config.Collection
	if collection == "" {
		collection = collectionNameFor[T]()
	}

	logger := manager.logger
	if options.logger != nil {
		logger = *options.logger
	}
	logger = logger.With().Str("collection", collection).Logger()

	policy := DefaultRetryPolicy()
	if config.Retry != nil {
		policy = *config.Retry
	}

	return &Repository[T]{
		manager:    manager,
		config:     config,
		collection: collection,
		executor:   NewExecutor(policy, WithExecutorClock(options.clock), WithExecutorLogger(logger)),
		logger:     logger,
		clock:      options.clock,
	}
}

// Collection returns the collection name the repository operates on
func (r *Repository[T]) Collection() string {
	return r.collection
}

// GetByID fetches one record by identifier. A clean miss returns
// (nil, nil); only malformed ids and terminal store failures produce
// errors. Soft-deleted records read as missing.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	if err := r.validateID(id); err != nil {
		return nil, err
	}

	q := r.baseQuery()
	Where(r.config.IDColumn, OpEqual, id).Apply(q)

	entity, err := Execute(ctx, r.executor, func(ctx context.Context) (*T, error) {
		st, err := r.store()
		if err != nil {
			return nil, err
		}
		var row T
		if err := st.SelectOne(ctx, q, &row); err != nil {
			return nil, err
		}
		return &row, nil
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, r.handleError("get_by_id", err)
	}
	return entity, nil
}

// List returns one page of records. The filter merges over the
// defaults (page 1, limit 10, id column descending); the query is
// composed as soft-delete predicate, scope hook, caller conditions,
// order, then the range window. List never returns an error value,
// failures are reported inside the envelope with default pagination.
func (r *Repository[T]) List(ctx context.Context, filter Filter) ListResult[T] {
	page := filter.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := filter.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = r.config.IDColumn
	}
	direction := OrderDesc
	if strings.EqualFold(filter.SortOrder, SortAsc) {
		direction = OrderAsc
	}
	offset := (page - 1) * limit

	q := r.baseQuery()
	for _, cond := range filter.Conditions {
		ConditionOption{Condition: cond}.Apply(q)
	}
	OrderBy(sortBy, direction).Apply(q)
	Limit(limit).Apply(q)
	Offset(offset).Apply(q)

	type pageOf struct {
		items []T
		total int64
	}
	result, err := Execute(ctx, r.executor, func(ctx context.Context) (pageOf, error) {
		st, err := r.store()
		if err != nil {
			return pageOf{}, err
		}
		var items []T
		total, err := st.Select(ctx, q, &items)
		if err != nil {
			return pageOf{}, err
		}
		return pageOf{items: items, total: total}, nil
	})
	if err != nil {
		wrapped := r.handleError("list", err)
		return ListResult[T]{
			Success: false,
			Items:   []T{},
			Pagination: Pagination{
				Page:  DefaultPage,
				Limit: DefaultLimit,
			},
			Error: wrapped.Error(),
		}
	}

	items := result.items
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{
		Success: true,
		Items:   items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      result.total,
			TotalPages: int(math.Ceil(float64(result.total) / float64(limit))),
		},
	}
}

// Create inserts a record and returns the stored row. The BeforeInsert
// hook runs first, then the created/updated columns are stamped when
// the data does not already carry them.
func (r *Repository[T]) Create(ctx context.Context, data map[string]interface{}) (*T, error) {
	if len(data) == 0 {
		return nil, NewValidationError("create requires a non-empty record")
	}

	row := cloneRow(data)
	if r.config.BeforeInsert != nil {
		row = r.config.BeforeInsert(row)
	}
	now := r.clock.Now().UTC()
	if _, ok := row[r.config.CreatedColumn]; !ok {
		row[r.config.CreatedColumn] = now
	}
	if _, ok := row[r.config.UpdatedColumn]; !ok {
		row[r.config.UpdatedColumn] = now
	}

	entity, err := Execute(ctx, r.executor, func(ctx context.Context) (*T, error) {
		st, err := r.store()
		if err != nil {
			return nil, err
		}
		var created T
		if err := st.Insert(ctx, r.collection, row, &created); err != nil {
			return nil, err
		}
		return &created, nil
	})
	if err != nil {
		if IsNotFound(err) {
			err = NewDatabaseError("insert accepted but returned no row", err)
		}
		return nil, r.handleError("create", err)
	}
	return entity, nil
}

// Update applies a partial change set to one record and returns the
// stored row. The record must currently exist and be visible, the
// updated column is always restamped.
func (r *Repository[T]) Update(ctx context.Context, id string, data map[string]interface{}) (*T, error) {
	if err := r.validateID(id); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, NewValidationError("update requires a non-empty record")
	}

	exists, err := r.ExistsByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewNotFoundError(fmt.Sprintf("record '%s' not found in %s", id, r.collection))
	}

	changes := cloneRow(data)
	if r.config.BeforeUpdate != nil {
		changes = r.config.BeforeUpdate(changes)
	}
	changes[r.config.UpdatedColumn] = r.clock.Now().UTC()

	q := r.baseQuery()
	Where(r.config.IDColumn, OpEqual, id).Apply(q)

	entity, err := Execute(ctx, r.executor, func(ctx context.Context) (*T, error) {
		st, err := r.store()
		if err != nil {
			return nil, err
		}
		var updated T
		if err := st.Update(ctx, q, changes, &updated); err != nil {
			return nil, err
		}
		return &updated, nil
	})
	if err != nil {
		if IsNotFound(err) {
			err = NewDatabaseError("update matched no row", err)
		}
		return nil, r.handleError("update", err)
	}
	return entity, nil
}

// Delete removes one record and reports whether a row went away. With
// soft delete enabled the deleted column is stamped instead, guarded
// by "not already deleted" so racing deletes cannot stamp twice; a
// lost race reads as (false, nil).
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.validateID(id); err != nil {
		return false, err
	}

	exists, err := r.ExistsByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, NewNotFoundError(fmt.Sprintf("record '%s' not found in %s", id, r.collection))
	}

	q := r.baseQuery()
	Where(r.config.IDColumn, OpEqual, id).Apply(q)

	if r.config.SoftDelete {
		changes := map[string]interface{}{
			r.config.DeletedColumn: r.clock.Now().UTC(),
		}
		err := r.executor.Do(ctx, func(ctx context.Context) error {
			st, err := r.store()
			if err != nil {
				return err
			}
			return st.Update(ctx, q, changes, nil)
		})
		if err != nil {
			if IsNotFound(err) {
				return false, nil
			}
			return false, r.handleError("delete", err)
		}
		return true, nil
	}

	affected, err := Execute(ctx, r.executor, func(ctx context.Context) (int64, error) {
		st, err := r.store()
		if err != nil {
			return 0, err
		}
		return st.Delete(ctx, q)
	})
	if err != nil {
		return false, r.handleError("delete", err)
	}
	return affected > 0, nil
}

// ExistsByID reports whether a visible record with the id exists. A
// malformed id is an error, but remote trouble degrades to false so
// existence checks never take a caller down.
func (r *Repository[T]) ExistsByID(ctx context.Context, id string) (bool, error) {
	if err := r.validateID(id); err != nil {
		return false, err
	}

	q := r.baseQuery()
	Where(r.config.IDColumn, OpEqual, id).Apply(q)

	count, err := Execute(ctx, r.executor, func(ctx context.Context) (int64, error) {
		st, err := r.store()
		if err != nil {
			return 0, err
		}
		return st.Count(ctx, q)
	})
	if err != nil {
		r.logger.Warn().
			Str("operation", "exists_by_id").
			Str("code", string(Classify(err))).
			Err(err).
			Msg("existence check degraded to false")
		return false, nil
	}
	return count > 0, nil
}

// store fetches the current handle. A missing handle reads as a
// connection error so the executor may retry across a reset window.
func (r *Repository[T]) store() (Store, error) {
	if st := r.manager.Store(); st != nil {
		return st, nil
	}
	return nil, &RemoteError{
		Code:    string(CodeConnectionError),
		Message: "store handle is not set",
	}
}

// baseQuery starts every repository query: soft-delete predicate
// first, then the configured scope hook.
func (r *Repository[T]) baseQuery() *Query {
	q := NewQuery(r.collection)
	if r.config.SoftDelete {
		WhereNull(r.config.DeletedColumn).Apply(q)
	}
	if r.config.Scope != nil {
		q = r.config.Scope(q)
	}
	return q
}

// validateID enforces the configured identifier format
func (r *Repository[T]) validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return NewValidationError("id is required")
	}
	if r.config.IDFormat == IDFormatUUID && !uuidPattern.MatchString(id) {
		return NewValidationError(fmt.Sprintf("id '%s' is not a valid UUID", id))
	}
	return nil
}

// handleError is the single funnel for terminal store failures: log
// with classified context, then wrap as a database error. Validation
// and not-found errors raised earlier pass through untouched.
func (r *Repository[T]) handleError(operation string, err error) error {
	code := Classify(err)

	evt := r.logger.Error().
		Str("operation", operation).
		Str("code", string(code)).
		Err(err)
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		if remoteErr.Detail != "" {
			evt = evt.Str("detail", remoteErr.Detail)
		}
		if remoteErr.Hint != "" {
			evt = evt.Str("hint", remoteErr.Hint)
		}
	}
	evt.Msg("store operation failed")

	if rdaErr, ok := err.(Error); ok {
		switch rdaErr.Type {
		case ErrorTypeValidation, ErrorTypeNotFound:
			return rdaErr
		case ErrorTypeDatabase:
			if rdaErr.Code == "" {
				rdaErr.Code = code
			}
			return rdaErr
		}
	}

	return NewDatabaseErrorWithCode(fmt.Sprintf("%s failed", operation), code, err)
}

// cloneRow copies caller data so hooks and stamping never mutate the
// caller's map.
func cloneRow(data map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		row[k] = v
	}
	return row
}

// collectionNameFor infers a collection name from T's type name,
// snake_cased and naively pluralized. Explicit configuration wins.
func collectionNameFor[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return ""
	}
	name := toSnakeCase(t.Name())
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}

// toSnakeCase converts CamelCase to snake_case
func toSnakeCase(str string) string {
	var result strings.Builder
	for i, r := range str {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
