package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// ConnConfig describes a live metadata connection.
type ConnConfig struct {
	// Driver selects the engine: "postgres" or "duckdb".
	Driver string `koanf:"driver"`

	// Path is the database file for file-based engines (DuckDB).
	Path string `koanf:"path"`

	// Network engines.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`

	// Schema is the default schema applied to unqualified names.
	Schema string `koanf:"schema"`
}

// Open connects per the config and returns a live provider.
func Open(ctx context.Context, cfg ConnConfig, log *slog.Logger) (*SQLProvider, error) {
	switch cfg.Driver {
	case "postgres":
		return openPostgres(ctx, cfg, log)
	case "duckdb":
		return openDuckDB(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown metadata driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg ConnConfig, log *slog.Logger) (*SQLProvider, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	return NewSQLProvider(db, PostgresDialect(), schema, log), nil
}

func postgresDSN(cfg ConnConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.User)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

func openDuckDB(ctx context.Context, cfg ConnConfig, log *slog.Logger) (*SQLProvider, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "main"
	}
	return NewSQLProvider(db, DuckDBDialect(), schema, log), nil
}
