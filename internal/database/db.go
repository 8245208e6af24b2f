// Package database provides Postgres access to the route catalog and
// the historical accident archive. Both are read-mostly: scraping and
// cleaning scripts own the write side and live outside this repo.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
)

// DB wraps the database connection
type DB struct {
	*sql.DB

	// scoring carries the spatial calibration used to resolve and
	// re-check search radii on accident fetches.
	scoring scoring.Config
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{DB: db, scoring: scoring.DefaultConfig()}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// CountRoutesWithCoordinates returns the number of routes eligible for
// precomputation.
func (db *DB) CountRoutesWithCoordinates(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM routes
		WHERE lat IS NOT NULL AND lon IS NOT NULL
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return count, nil
}
