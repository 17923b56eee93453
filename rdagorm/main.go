// Package rdagorm provides a GORM-backed store adapter for the
// resilient data access (RDA) layer.
package rdagorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/lemmego/rda"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// =====================================
// Factory Implementation
// =====================================

// Options tunes GORM behavior and the underlying connection pool
type Options struct {
	// Driver forces a driver instead of inferring it from the endpoint.
	// Supported: postgres, postgresql, mysql, sqlite, sqlite3,
	// sqlserver, mssql.
	Driver string

	// LogLevel selects GORM's own logger: silent, error, warn, info.
	// Empty means silent.
	LogLevel string

	SingularTable bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Factory builds GORM-backed stores from connection configs
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
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3", "sqlserver", "mssql"}
}

// Create opens a GORM handle for the configured endpoint and wraps it
// in a Store.
func (f *Factory) Create(config rda.ConnectionConfig) (rda.Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(f.options.LogLevel)),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: f.options.SingularTable,
		},
	}

	driver := f.options.Driver
	if driver == "" {
		driver = detectDriver(config.Endpoint)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(config.Endpoint)
	case "mysql":
		dialector = mysql.Open(mysqlDSN(config.Endpoint))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(config.Endpoint)
	case "sqlserver", "mssql":
		dialector = sqlserver.Open(config.Endpoint)
	default:
		return nil, rda.NewValidationError(fmt.Sprintf("unsupported driver: %s", driver))
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, rda.NewDatabaseError("opening database connection failed", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, rda.NewDatabaseError("getting underlying sql.DB failed", err)
	}
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

	return NewStore(db), nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}

// detectDriver infers the driver from the endpoint shape
func detectDriver(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "postgres://"), strings.HasPrefix(endpoint, "postgresql://"),
		strings.HasPrefix(endpoint, "host="):
		return "postgres"
	case strings.HasPrefix(endpoint, "sqlserver://"):
		return "sqlserver"
	case strings.HasPrefix(endpoint, "mysql://"), strings.Contains(endpoint, "@tcp("):
		return "mysql"
	default:
		return "sqlite"
	}
}

// mysqlDSN normalizes the endpoint into a go-sql-driver DSN with time
// parsing enabled.
func mysqlDSN(endpoint string) string {
	dsn := strings.TrimPrefix(endpoint, "mysql://")
	if strings.Contains(dsn, "parseTime") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=True"
	}
	return dsn + "?parseTime=True"
}

// =====================================
// Store Implementation
// =====================================

// Store implements rda.Store using GORM
type Store struct {
	db *gorm.DB
}

// NewStore wraps an existing GORM handle
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying GORM handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) table(ctx context.Context, collection string) *gorm.DB {
	return s.db.WithContext(ctx).Table(collection)
}

// Select runs a windowed query and returns the total row count without
// the window applied.
func (s *Store) Select(ctx context.Context, q *rda.Query, dest interface{}) (int64, error) {
	var total int64
	counter := applyConditions(s.table(ctx, q.Collection), q.Conditions)
	if err := counter.Count(&total).Error; err != nil {
		return 0, convertError(err)
	}

	finder := applyConditions(s.table(ctx, q.Collection), q.Conditions)
	if len(q.Fields) > 0 {
		finder = finder.Select(q.Fields)
	}
	for _, order := range q.Orders {
		finder = finder.Order(fmt.Sprintf("%s %s", order.Field, order.Direction))
	}
	if q.Limit != nil {
		finder = finder.Limit(*q.Limit)
	}
	if q.Offset != nil {
		finder = finder.Offset(*q.Offset)
	}

	if err := finder.Find(dest).Error; err != nil {
		return 0, convertError(err)
	}
	return total, nil
}

// SelectOne fetches a single row, returning a not-found error on a miss
func (s *Store) SelectOne(ctx context.Context, q *rda.Query, dest interface{}) error {
	db := applyConditions(s.table(ctx, q.Collection), q.Conditions)
	return convertError(db.Take(dest).Error)
}

// Insert stores a row and reads the stored version back into dest.
// Every dialect takes the same create-then-reread path, keyed on the
// id column when the caller supplied one.
func (s *Store) Insert(ctx context.Context, collection string, row map[string]interface{}, dest interface{}) error {
	values := cloneRow(row)
	if err := s.table(ctx, collection).Create(values).Error; err != nil {
		return convertError(err)
	}
	if dest == nil {
		return nil
	}

	key, ok := values[rda.DefaultIDColumn]
	if !ok {
		// nothing to read back by, echo what was sent
		return scanRow(values, dest)
	}
	reread := rda.NewQuery(collection, rda.Where(rda.DefaultIDColumn, rda.OpEqual, key))
	return s.SelectOne(ctx, reread, dest)
}

// Update applies changes to every row the query matches. Matching
// nothing is a not-found error so guarded updates can detect a lost
// race.
func (s *Store) Update(ctx context.Context, q *rda.Query, changes map[string]interface{}, dest interface{}) error {
	db := applyConditions(s.table(ctx, q.Collection), q.Conditions)

	res := db.Updates(changes)
	if res.Error != nil {
		return convertError(res.Error)
	}
	if res.RowsAffected == 0 {
		return rda.NewNotFoundError("update matched no rows")
	}
	if dest == nil {
		return nil
	}
	return s.SelectOne(ctx, rereadQuery(q, changes), dest)
}

// Delete removes every row the query matches and reports how many went
func (s *Store) Delete(ctx context.Context, q *rda.Query) (int64, error) {
	db := applyConditions(s.table(ctx, q.Collection), q.Conditions)

	res := db.Delete(nil)
	if res.Error != nil {
		return 0, convertError(res.Error)
	}
	return res.RowsAffected, nil
}

// Count counts the rows the query matches
func (s *Store) Count(ctx context.Context, q *rda.Query) (int64, error) {
	var total int64
	db := applyConditions(s.table(ctx, q.Collection), q.Conditions)
	if err := db.Count(&total).Error; err != nil {
		return 0, convertError(err)
	}
	return total, nil
}

// Probe runs a minimal query against the collection
func (s *Store) Probe(ctx context.Context, collection string) error {
	var one int
	err := s.table(ctx, collection).Select("1").Limit(1).Scan(&one).Error
	return convertError(err)
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =====================================
// Query Translation
// =====================================

func applyConditions(db *gorm.DB, conds []rda.Condition) *gorm.DB {
	for _, cond := range conds {
		db = applyCondition(db, cond)
	}
	return db
}

// applyCondition applies a single condition to the GORM query
func applyCondition(db *gorm.DB, cond rda.Condition) *gorm.DB {
	field := cond.Field()
	value := cond.Value()

	switch cond.Operator() {
	case rda.OpEqual:
		return db.Where(fmt.Sprintf("%s = ?", field), value)
	case rda.OpNotEqual:
		return db.Where(fmt.Sprintf("%s != ?", field), value)
	case rda.OpGreaterThan:
		return db.Where(fmt.Sprintf("%s > ?", field), value)
	case rda.OpGreaterThanOrEqual:
		return db.Where(fmt.Sprintf("%s >= ?", field), value)
	case rda.OpLessThan:
		return db.Where(fmt.Sprintf("%s < ?", field), value)
	case rda.OpLessThanOrEqual:
		return db.Where(fmt.Sprintf("%s <= ?", field), value)
	case rda.OpLike:
		return db.Where(fmt.Sprintf("%s LIKE ?", field), value)
	case rda.OpIn:
		return db.Where(fmt.Sprintf("%s IN ?", field), value)
	case rda.OpIsNull:
		return db.Where(fmt.Sprintf("%s IS NULL", field))
	case rda.OpIsNotNull:
		return db.Where(fmt.Sprintf("%s IS NOT NULL", field))
	default:
		return db.Where(cond.String(), value)
	}
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

func cloneRow(row map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
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

// convertError normalizes GORM errors. Misses become not-found errors,
// MySQL server errors become RemoteError envelopes, postgres errors
// pass through untouched because the classifier reads pgconn errors
// directly.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rda.NewNotFoundError("record not found")
	}

	var mysqlErr *gomysql.MySQLError
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
func mysqlCode(err *gomysql.MySQLError) string {
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
