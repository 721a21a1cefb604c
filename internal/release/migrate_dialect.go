package release

import "database/sql"

// sqlite3Dialect implements gomigrate.Migratable for sqlite3. The library
// ships a Postgres dialect (as used verbatim in the teacher's database
// package); this supplies the same contract with sqlite-flavored DDL so
// the registry's migration ledger works against the driver this package
// actually opens.
type sqlite3Dialect struct{}

func (sqlite3Dialect) CreateMigrationTableSql() string {
	return `CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration_id BIGINT NOT NULL,
		name TEXT,
		created_at DATETIME
	)`
}

func (sqlite3Dialect) DumpSchema(tx *sql.Tx) (string, error) {
	rows, err := tx.Query("SELECT sql FROM sqlite_master WHERE sql IS NOT NULL")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	schema := ""
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", err
		}
		schema += stmt + ";\n"
	}
	return schema, rows.Err()
}

func (sqlite3Dialect) SelectMigrationTableSql() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'migrations'"
}

func (sqlite3Dialect) GetMigrationSql() string {
	return "SELECT migration_id FROM migrations ORDER BY migration_id ASC"
}

func (sqlite3Dialect) MigrationLogInsertSql() string {
	return "INSERT INTO migrations (migration_id, name, created_at) VALUES ($1, $2, CURRENT_TIMESTAMP)"
}

func (sqlite3Dialect) MigrationLogDeleteSql() string {
	return "DELETE FROM migrations WHERE migration_id = $1"
}

func (sqlite3Dialect) GetMigrationCommands(sql string) []string {
	return []string{sql}
}
