// Package sql holds the configuration shared by the SQL driver adapters
// (postgres, sqlite) and re-exports the database.DB contract under the
// name each adapter's doc comments already refer to: sql.SQL.
package sql

import (
	"time"

	"github.com/nickmkk/Platibus/pkg/database"
)

// SQL is the connection-manager contract implemented by each driver
// adapter. It is an alias of database.DB so adapters can depend on this
// narrower, driver-facing package without importing the parent.
type SQL = database.DB

// Config configures a SQL adapter connection.
type Config struct {
	// Driver selects the adapter: "postgres" or "sqlite".
	Driver string `env:"DB_DRIVER" env-default:"postgres"`

	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	// Name is the database name for postgres, or the file path for sqlite.
	Name    string `env:"DB_NAME"`
	SSLMode string `env:"DB_SSLMODE" env-default:"disable"`

	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"4"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"16"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
}
