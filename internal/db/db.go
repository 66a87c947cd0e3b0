package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MySQL server error numbers the application reacts to.
const (
	errDuplicateColumn  = 1060
	errDuplicateKeyName = 1061
	errDuplicateEntry   = 1062
)

// DB wraps the database connection with metrics
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB opens an otelsql-instrumented MySQL pool and verifies it with a ping
func NewDB(dsn string, serviceName string, logger *zap.Logger) (*DB, error) {
	driverName, err := otelsql.Register("mysql",
		otelsql.WithAttributes(
			attribute.String("db.system", "mysql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("service.name", serviceName),
	)); err != nil {
		logger.Warn("failed to register otelsql stats metrics", zap.Error(err))
	}

	return Wrap(db, logger), nil
}

// Wrap adapts an already opened *sql.DB.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: db, logger: logger}
}

// IsDuplicateEntry reports whether err is a unique key violation.
func IsDuplicateEntry(err error) bool {
	return mysqlErrorNumber(err) == errDuplicateEntry
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// alreadyApplied covers DDL that MySQL cannot guard with IF NOT EXISTS, such
// as CREATE INDEX, when the schema is applied a second time.
func alreadyApplied(err error) bool {
	switch mysqlErrorNumber(err) {
	case errDuplicateColumn, errDuplicateKeyName:
		return true
	}
	return false
}

// InitSchema applies schemaSQL statement by statement. Statements whose
// effect is already present are skipped, so the schema can be applied on
// every start.
func (db *DB) InitSchema(ctx context.Context, schemaSQL string) error {
	statements := splitSQLStatements(schemaSQL)

	skipped := 0
	for i, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if alreadyApplied(err) {
			skipped++
			db.logger.Debug("schema statement already applied", zap.Int("statement", i+1), zap.Error(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to execute statement %d: %w\nStatement: %s", i+1, err, stmt)
		}
	}

	db.logger.Info("database schema initialized",
		zap.Int("statements", len(statements)),
		zap.Int("skipped", skipped),
	)
	return nil
}

// splitSQLStatements splits a script on semicolons that sit outside quoted
// strings, dropping "--" comments.
func splitSQLStatements(script string) []string {
	var (
		result  []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			result = append(result, stmt)
		}
		current.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			current.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				current.WriteRune(runes[i])
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteRune(c)
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case c == ';':
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return result
}

// Healthy pings the database within timeout.
func (db *DB) Healthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}
