// Package pgschema owns huddle's PostgreSQL DDL and applies it on demand.
package pgschema

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema every store uses unless configured otherwise.
const DefaultSchema = "huddle"

//go:embed schema.sql
var schemaSQL string

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ValidIdent reports whether s is a plain, unquoted-safe PostgreSQL identifier.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// CheckSchema trims and validates a schema name, returning the cleaned value.
func CheckSchema(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "", fmt.Errorf("empty schema")
	}
	if !ValidIdent(schema) {
		return "", fmt.Errorf("invalid schema identifier %q", schema)
	}
	return schema, nil
}

// Table returns the quoted "schema"."name" identifier.
func Table(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// SQL renders the DDL for schema.
func SQL(schema string) (string, error) {
	schema, err := CheckSchema(schema)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize()), nil
}

// Apply creates the schema and all tables if they do not exist. It is idempotent.
func Apply(ctx context.Context, db Execer, schema string) error {
	ddl, err := SQL(schema)
	if err != nil {
		return fmt.Errorf("pgschema: %w", err)
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgschema: apply %s: %w", schema, err)
	}
	return nil
}
