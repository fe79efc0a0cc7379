package turso

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Options configures how the database handle is opened.
type Options struct {
	Ping bool
}

// Open connects to a libsql database. url may be a remote Turso URL
// (libsql://, https://) or a local "file:" path; authToken is only sent for
// remote URLs.
func Open(url, authToken string) (*sql.DB, error) {
	return OpenWithOptions(url, authToken, Options{Ping: true})
}

// OpenWithOptions opens a libsql database with custom options.
func OpenWithOptions(url, authToken string, opts Options) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connStr := url
	if authToken != "" && !strings.HasPrefix(url, "file:") {
		connStr = url + "?authToken=" + authToken
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if !strings.HasPrefix(url, "file:") {
		// Turso closes idle Hrana streams aggressively; stale pooled
		// connections surface as "stream not found".
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(0)
	}

	if opts.Ping {
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	}

	return db, nil
}

// IsStreamError reports whether err is a Turso "stream not found" error.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "stream not found")
}

// WithRetry runs fn, retrying up to maxRetries times on stream errors only.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !IsStreamError(err) || attempt == maxRetries {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	return result, err
}
