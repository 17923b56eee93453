// Package rdabun provides a Bun-backed store adapter for the resilient
// data access (RDA) layer.
package rdabun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/rda"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// =====================================
// Factory Implementation
// =====================================

// Options tunes the underlying connection pool and query logging
type Options struct {
	// Driver forces a driver instead of inferring it from the endpoint.
	// Supported: postgres, postgresql, mysql, sqlite, sqlite3.
	Driver string

	// Verbose logs every query through bundebug
	Verbose bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Factory builds Bun-backed stores from connection configs
type Factory struct {
	options Options
}

// NewFactory creates a store factory with the given options
func NewFactory(options Options) *Factory {
	return &Factory{options: options}
}

// NewStoreFactory adapts the factory to the rda.StoreFactory boundary.
func NewStoreFactory(options Options) rda.StoreFactory {
	return NewFactory(options).Create
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"}
}

// Create opens a database handle for the configured endpoint and wraps
// it in a Store.
func (f *Factory) Create(config rda.ConnectionConfig) (rda.Store, error) {
	driver := f.options.Driver
	if driver == "" {
		driver = detectDriver(config.Endpoint)
	}

	var sqlDB *sql.DB
	var err error

	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		sqlDB = createPostgresConnection(config)
	case "mysql":
		sqlDB, err = createMySQLConnection(config)
	case "sqlite", "sqlite3":
		sqlDB, err = createSQLiteConnection(config)
	default:
		return nil, rda.NewValidationError(fmt.Sprintf("unsupported driver: %s", driver))
	}
	if err != nil {
		return nil, rda.NewDatabaseError("opening database connection failed", err)
	}

	// Configure connection pool
	if f.options.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(f.options.MaxOpenConns)
	}
	if f.options.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(f.options.MaxIdleConns)
	}
	if f.options.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(f.options.ConnMaxLifetime)
	}
	if f.options.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(f.options.ConnMaxIdleTime)
	}

	var bunDB *bun.DB
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		bunDB = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bunDB = bun.NewDB(sqlDB, mysqldialect.New())
	case "sqlite", "sqlite3":
		bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	if f.options.Verbose {
		bunDB.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return NewStore(bunDB), nil
}

// detectDriver infers the driver from the endpoint shape
func detectDriver(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "postgres://"), strings.HasPrefix(endpoint, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(endpoint, "mysql://"), strings.Contains(endpoint, "@tcp("):
		return "mysql"
	default:
		return "sqlite"
	}
}

// createPostgresConnection builds a postgres handle through pgdriver
func createPostgresConnection(config rda.ConnectionConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(config.Endpoint)}
	if config.Credential != "" {
		opts = append(opts, pgdriver.WithPassword(config.Credential))
	}
	if config.Schema != "" {
		opts = append(opts, pgdriver.WithConnParams(map[string]interface{}{
			"search_path": config.Schema,
		}))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// createMySQLConnection builds a MySQL handle from a parsed DSN
func createMySQLConnection(config rda.ConnectionConfig) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(config.Endpoint, "mysql://"))
	if err != nil {
		return nil, err
	}
	if config.Credential != "" {
		cfg.Passwd = config.Credential
	}
	cfg.ParseTime = true
	return sql.Open("mysql", cfg.FormatDSN())
}

// createSQLiteConnection builds a SQLite handle
func createSQLiteConnection(config rda.ConnectionConfig) (*sql.DB, error) {
	return sql.Open("sqlite3", config.Endpoint)
}

// =====================================
// Store Implementation
// =====================================

// Store implements rda.Store using Bun
type Store struct {
	db *bun.DB
}

// NewStore wraps an existing Bun database handle
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying Bun handle
func (s *Store) DB() *bun.DB {
	return s.db
}

// Select runs a windowed query and returns the total row count without
// the window applied.
func (s *Store) Select(ctx context.Context, q *rda.Query, dest interface{}) (int64, error) {
	sel := s.db.NewSelect().Model(dest).ModelTableExpr("? AS ?TableAlias", bun.Ident(q.Collection))
	sel = applySelectConditions(sel, q.Conditions)

	if len(q.Fields) > 0 {
		sel = sel.Column(q.Fields...)
	}
	for _, order := range q.Orders {
		sel = sel.Order(fmt.Sprintf("%s %s", order.Field, order.Direction))
	}
	if q.Limit != nil {
		sel = sel.Limit(*q.Limit)
	}
	if q.Offset != nil {
		sel = sel.Offset(*q.Offset)
	}

	total, err := sel.ScanAndCount(ctx)
	if err != nil {
		return 0, convertError(err)
	}
	return int64(total), nil
}

// SelectOne fetches a single row, returning a not-found error on a miss
func (s *Store) SelectOne(ctx context.Context, q *rda.Query, dest interface{}) error {
	sel := s.db.NewSelect().Model(dest).ModelTableExpr("? AS ?TableAlias", bun.Ident(q.Collection))
	sel = applySelectConditions(sel, q.Conditions)
	return convertError(sel.Limit(1).Scan(ctx))
}

// Insert stores a row and reads the stored version back into dest. The
// read-back keys on the id column: a client-supplied id wins, then the
// driver's last-insert id, then a RETURNING id where the dialect has it.
func (s *Store) Insert(ctx context.Context, collection string, row map[string]interface{}, dest interface{}) error {
	values := make(map[string]interface{}, len(row))
	for k, v := range row {
		values[k] = v
	}

	ins := s.db.NewInsert().Model(&values).TableExpr("?", bun.Ident(collection))

	key, hasKey := values[rda.DefaultIDColumn]
	if !hasKey && dest != nil && s.returningSupported() {
		var generated interface{}
		ins = ins.Returning("?", bun.Ident(rda.DefaultIDColumn))
		if _, err := ins.Exec(ctx, &generated); err != nil {
			return convertError(err)
		}
		key, hasKey = generated, generated != nil
	} else {
		res, err := ins.Exec(ctx)
		if err != nil {
			return convertError(err)
		}
		if !hasKey && dest != nil {
			if id, idErr := res.LastInsertId(); idErr == nil && id != 0 {
				key, hasKey = id, true
			}
		}
	}

	if dest == nil {
		return nil
	}
	if !hasKey {
		// nothing to read back by, echo what was sent
		return scanRow(values, dest)
	}
	reread := rda.NewQuery(collection, rda.Where(rda.DefaultIDColumn, rda.OpEqual, key))
	return s.SelectOne(ctx, reread, dest)
}

// Update applies changes to every row the query matches. Matching
// nothing is a not-found error so guarded updates can detect a lost
// race. When dest is non-nil the stored row is read back through the
// query's conditions minus any column the update itself changed.
func (s *Store) Update(ctx context.Context, q *rda.Query, changes map[string]interface{}, dest interface{}) error {
	upd := s.db.NewUpdate().Table(q.Collection)
	for field, value := range changes {
		upd = upd.Set("? = ?", bun.Ident(field), value)
	}
	upd = applyUpdateConditions(upd, q.Conditions)

	res, err := upd.Exec(ctx)
	if err != nil {
		return convertError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return convertError(err)
	}
	if affected == 0 {
		return rda.NewNotFoundError("update matched no rows")
	}
	if dest == nil {
		return nil
	}
	return s.SelectOne(ctx, rereadQuery(q, changes), dest)
}

// Delete removes every row the query matches and reports how many went
func (s *Store) Delete(ctx context.Context, q *rda.Query) (int64, error) {
	del := s.db.NewDelete().Table(q.Collection)
	del = applyDeleteConditions(del, q.Conditions)

	res, err := del.Exec(ctx)
	if err != nil {
		return 0, convertError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, convertError(err)
	}
	return affected, nil
}

// Count counts the rows the query matches
func (s *Store) Count(ctx context.Context, q *rda.Query) (int64, error) {
	sel := s.db.NewSelect().Table(q.Collection)
	sel = applySelectConditions(sel, q.Conditions)

	count, err := sel.Count(ctx)
	return int64(count), convertError(err)
}

// Probe runs a minimal existence query against the collection
func (s *Store) Probe(ctx context.Context, collection string) error {
	_, err := s.db.NewSelect().ColumnExpr("1").Table(collection).Limit(1).Exists(ctx)
	return convertError(err)
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) returningSupported() bool {
	name := s.db.Dialect().Name()
	return name == dialect.PG || name == dialect.SQLite
}

// =====================================
// Query Translation
// =====================================

// conditionSQL renders one condition as a Bun where expression
func conditionSQL(cond rda.Condition) (string, []interface{}) {
	field := bun.Ident(cond.Field())

	switch cond.Operator() {
	case rda.OpEqual:
		return "? = ?", []interface{}{field, cond.Value()}
	case rda.OpNotEqual:
		return "? != ?", []interface{}{field, cond.Value()}
	case rda.OpGreaterThan:
		return "? > ?", []interface{}{field, cond.Value()}
	case rda.OpGreaterThanOrEqual:
		return "? >= ?", []interface{}{field, cond.Value()}
	case rda.OpLessThan:
		return "? < ?", []interface{}{field, cond.Value()}
	case rda.OpLessThanOrEqual:
		return "? <= ?", []interface{}{field, cond.Value()}
	case rda.OpLike:
		return "? LIKE ?", []interface{}{field, cond.Value()}
	case rda.OpIn:
		return "? IN (?)", []interface{}{field, bun.In(cond.Value())}
	case rda.OpIsNull:
		return "? IS NULL", []interface{}{field}
	case rda.OpIsNotNull:
		return "? IS NOT NULL", []interface{}{field}
	default:
		return "? = ?", []interface{}{field, cond.Value()}
	}
}

func applySelectConditions(q *bun.SelectQuery, conds []rda.Condition) *bun.SelectQuery {
	for _, cond := range conds {
		expr, args := conditionSQL(cond)
		q = q.Where(expr, args...)
	}
	return q
}

func applyUpdateConditions(q *bun.UpdateQuery, conds []rda.Condition) *bun.UpdateQuery {
	for _, cond := range conds {
		expr, args := conditionSQL(cond)
		q = q.Where(expr, args...)
	}
	return q
}

func applyDeleteConditions(q *bun.DeleteQuery, conds []rda.Condition) *bun.DeleteQuery {
	for _, cond := range conds {
		expr, args := conditionSQL(cond)
		q = q.Where(expr, args...)
	}
	return q
}

// rereadQuery strips conditions on columns the update changed, so the
// read-back still finds the row after a guard column moved.
func rereadQuery(q *rda.Query, changes map[string]interface{}) *rda.Query {
	reread := rda.NewQuery(q.Collection)
	for _, cond := range q.Conditions {
		if _, changed := changes[cond.Field()]; changed {
			continue
		}
		reread.Conditions = append(reread.Conditions, cond)
	}
	return reread
}

func scanRow(row map[string]interface{}, dest interface{}) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// =====================================
// Error Conversion
// =====================================

// convertError normalizes driver errors. Misses become not-found
// errors, vendor errors become RemoteError envelopes carrying the
// SQLSTATE, anything else passes through for the classifier.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return rda.NewNotFoundError("record not found")
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return &rda.RemoteError{
			Code:    pgErr.Field('C'),
			Message: pgErr.Field('M'),
			Detail:  pgErr.Field('D'),
			Hint:    pgErr.Field('H'),
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return &rda.RemoteError{
			Code:    mysqlCode(mysqlErr),
			Message: mysqlErr.Message,
			Detail:  fmt.Sprintf("mysql error %d", mysqlErr.Number),
		}
	}

	return err
}

// mysqlCode maps MySQL error numbers onto the SQLSTATE space the
// classifier understands, falling back to the server's own state.
func mysqlCode(err *mysql.MySQLError) string {
	switch err.Number {
	case 1146: // unknown table
		return "42P01"
	case 1040, 1203: // too many connections
		return "53300"
	case 1205: // lock wait timeout
		return "57014"
	}
	if err.SQLState != [5]byte{} {
		return string(err.SQLState[:])
	}
	return fmt.Sprintf("%d", err.Number)
}
