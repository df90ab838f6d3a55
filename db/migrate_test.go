package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	t.Run("creates schema_migrations table", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(db, nil)
		require.NoError(t, err)

		// Every migration is recorded, including the bootstrap one
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 2, "bootstrap and artifacts migrations should be recorded")
	})

	t.Run("is idempotent", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(db, nil)
		require.NoError(t, err)

		var first int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&first)
		require.NoError(t, err)

		// Second run must skip everything already applied
		err = Migrate(db, nil)
		require.NoError(t, err)

		var second int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&second)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("artifacts table enforces version uniqueness", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		const insert = `INSERT INTO artifacts (type_name, logical_id, stamp, address, digest, size_bytes)
		                VALUES (?, ?, ?, ?, ?, ?)`

		_, err = db.Exec(insert, "work_items", "alpha", "260115", "sourceA/plans/work_items/alpha.260115.csv", "d1", 42)
		require.NoError(t, err)

		// Same triple again violates UNIQUE(type_name, logical_id, stamp)
		_, err = db.Exec(insert, "work_items", "alpha", "260115", "sourceA/plans/work_items/alpha.260115.csv", "d2", 43)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UNIQUE")

		// Different stamp is a new version, not a conflict
		_, err = db.Exec(insert, "work_items", "alpha", "260116", "sourceA/plans/work_items/alpha.260116.csv", "d3", 44)
		require.NoError(t, err)
	})

	t.Run("stamp ordering is lexicographic", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		const insert = `INSERT INTO artifacts (type_name, logical_id, stamp, address, digest, size_bytes)
		                VALUES (?, ?, ?, ?, ?, ?)`
		for _, stamp := range []string{"260301", "251231", "260115"} {
			_, err = db.Exec(insert, "work_items", "alpha", stamp, "addr/"+stamp, "d", 1)
			require.NoError(t, err)
		}

		// The at-or-before query the store issues: max stamp <= cutoff
		var got string
		err = db.QueryRow(
			`SELECT stamp FROM artifacts WHERE type_name = ? AND logical_id = ? AND stamp <= ? ORDER BY stamp DESC LIMIT 1`,
			"work_items", "alpha", "260220",
		).Scan(&got)
		require.NoError(t, err)
		assert.Equal(t, "260115", got)
	})
}
