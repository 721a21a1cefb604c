package release

import (
	"database/sql"
	"sync"

	"github.com/DavidHuie/gomigrate"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RecordSummary is one row of the registry's release index.
type RecordSummary struct {
	GameUID      string
	ReleaseName  string
	Location     string
	Version      string
	Path         string
	IsDirty      bool
	IsInstalling bool
	IsUpdating   bool
	IsRepairing  string
	IsMoving     bool
}

// Registry is the supplemental sqlite-backed release index, grounded on
// the teacher's database package: one connection, prepared statements,
// migrations run at open time. It lets crash recovery (§4.9) enumerate
// every known release without walking the data root's directory tree.
type Registry struct {
	mu   sync.Mutex
	conn *sql.DB

	upsertStmt *sql.Stmt
	getStmt    *sql.Stmt
	listStmt   *sql.Stmt
	deleteStmt *sql.Stmt
}

const (
	upsertReleaseSql = `
INSERT INTO releases (game_uid, release_name, location, version, path, is_dirty, is_installing, is_updating, is_repairing, is_moving)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT(game_uid, release_name) DO UPDATE SET
  location = excluded.location,
  version = excluded.version,
  path = excluded.path,
  is_dirty = excluded.is_dirty,
  is_installing = excluded.is_installing,
  is_updating = excluded.is_updating,
  is_repairing = excluded.is_repairing,
  is_moving = excluded.is_moving;`

	selectReleaseColumns = "game_uid, release_name, location, version, path, is_dirty, is_installing, is_updating, is_repairing, is_moving"
	getReleaseSql        = "SELECT " + selectReleaseColumns + " FROM releases WHERE game_uid = $1 AND release_name = $2;"
	listReleasesSql      = "SELECT " + selectReleaseColumns + " FROM releases ORDER BY game_uid, release_name;"
	deleteReleaseSql     = "DELETE FROM releases WHERE game_uid = $1 AND release_name = $2;"
)

// OpenRegistry opens (creating if necessary) the sqlite database at dbPath
// and applies any pending migrations found in migrationsPath.
func OpenRegistry(dbPath, migrationsPath string) (*Registry, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening registry database")
	}
	// The sqlite3 driver serializes writers internally; a single
	// connection avoids SQLITE_BUSY under our own mutex instead.
	conn.SetMaxOpenConns(1)

	migrator, err := gomigrate.NewMigratorWithLogger(conn, sqlite3Dialect{}, migrationsPath, logrus.StandardLogger())
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "setting up registry migrator")
	}
	if err := migrator.Migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "running registry migrations")
	}

	reg := &Registry{conn: conn}
	if reg.upsertStmt, err = conn.Prepare(upsertReleaseSql); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "preparing upsert statement")
	}
	if reg.getStmt, err = conn.Prepare(getReleaseSql); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "preparing get statement")
	}
	if reg.listStmt, err = conn.Prepare(listReleasesSql); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "preparing list statement")
	}
	if reg.deleteStmt, err = conn.Prepare(deleteReleaseSql); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "preparing delete statement")
	}
	return reg, nil
}

// Close releases the underlying database connection.
func (reg *Registry) Close() error {
	return reg.conn.Close()
}

// Upsert writes or updates the index row for s, recording path as the
// location of its release.json.
func (reg *Registry) Upsert(s *State, path string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, err := reg.upsertStmt.Exec(s.GameUID, s.ReleaseName, s.Location, s.Version, path,
		s.IsDirty, s.IsInstalling, s.IsUpdating, s.IsRepairing, s.IsMoving)
	return err
}

// Get returns the indexed summary for gameUID/releaseName, or nil if the
// registry has no row for it (not an error: the index may simply be
// stale relative to a release.json that was written out-of-band).
func (reg *Registry) Get(gameUID, releaseName string) (*RecordSummary, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	row := reg.getStmt.QueryRow(gameUID, releaseName)
	rs, err := scanRecordSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rs, err
}

// List returns every indexed release, used by Setup-time crash recovery
// to enumerate candidates.
func (reg *Registry) List() ([]*RecordSummary, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rows, err := reg.listStmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RecordSummary
	for rows.Next() {
		rs := &RecordSummary{}
		if err := rows.Scan(&rs.GameUID, &rs.ReleaseName, &rs.Location, &rs.Version, &rs.Path,
			&rs.IsDirty, &rs.IsInstalling, &rs.IsUpdating, &rs.IsRepairing, &rs.IsMoving); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Delete removes the index row for a release, called on uninstall (§3
// "destroyed on uninstall").
func (reg *Registry) Delete(gameUID, releaseName string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, err := reg.deleteStmt.Exec(gameUID, releaseName)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecordSummary(row rowScanner) (*RecordSummary, error) {
	rs := &RecordSummary{}
	err := row.Scan(&rs.GameUID, &rs.ReleaseName, &rs.Location, &rs.Version, &rs.Path,
		&rs.IsDirty, &rs.IsInstalling, &rs.IsUpdating, &rs.IsRepairing, &rs.IsMoving)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Attach associates this registry with r so every future persist also
// syncs the index row.
func (r *Release) Attach(reg *Registry) {
	r.mu.Lock()
	r.registry = reg
	r.mu.Unlock()
}
