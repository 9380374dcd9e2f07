package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

const undefinedFunctionCode = "42883"

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// classifyQueryError maps a failed query to a domain error kind. A missing
// stored procedure and a vector dimension conflict get their own kinds so the
// search pipeline can react; anything else is treated as transient.
func classifyQueryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedFunctionCode {
		return domain.WrapError(domain.ErrProcedureMissing, op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "function") &&
		(strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")):
		return domain.WrapError(domain.ErrProcedureMissing, op, err)
	case strings.Contains(msg, "different vector dimensions"):
		return domain.WrapError(domain.ErrDimensionMismatch, op, err)
	default:
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
}
