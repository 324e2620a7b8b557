package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/isdelr/records-be/internal/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// collectionTables maps each collection name to its table.
var collectionTables = map[string]string{
	models.CollectionEmployees:      "employees",
	models.CollectionSkillFactories: "skill_factories",
	models.CollectionLearningPaths:  "learning_paths",
	models.CollectionAssessments:    "assessments",
	models.CollectionInstructions:   "instructions",
	models.CollectionAnnouncements:  "announcements",
}

// CollectionTable returns the table backing a collection.
func CollectionTable(collection string) (string, bool) {
	table, ok := collectionTables[collection]
	return table, ok
}

// New creates a new database connection pool and verifies it answers.
func New(dataSourceName string) (*sql.DB, error) {
	dsn := dataSourceName
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects and applies migrations. It is the default dial function of the Connector.
func Open(dataSourceName string) (*sql.DB, error) {
	db, err := New(dataSourceName)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE,
		email TEXT UNIQUE,
		role TEXT NOT NULL DEFAULT 'member',
		password_hash TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		resource_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		return err
	}

	// Every collection shares one layout: the record key is unique and
	// seq preserves insertion order for listing.
	for _, table := range collectionTables {
		stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`, table)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}
