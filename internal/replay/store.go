package replay

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
)

// Metadata is the single-row metadata table: the identity a reader restores
// a tab's endpoint from, plus the immutable compression dictionary.
type Metadata struct {
	SchemaVersion    int
	Host             string
	Port             int
	HostDistro       string
	ConnectionSource string // "direct", "proxysql", or a named hostgroup
	AppVersion       string
	CompressionDict  []byte
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS replay_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replay_data_timestamp ON replay_data(timestamp);
CREATE TABLE IF NOT EXISTS metadata (
	schema_version INTEGER NOT NULL,
	host TEXT,
	port INTEGER,
	host_distro TEXT,
	connection_source TEXT,
	app_version TEXT,
	compression_dict BLOB
);
`

// openForWrite opens (or creates) a replay file for recording. If an
// existing file's schema_version differs from SchemaVersion, it is renamed
// with a version suffix and a fresh file is created. auto_vacuum is
// enabled on creation.
func openForWrite(path string, meta Metadata) (*sql.DB, error) {
	if existingVersion, ok := readSchemaVersionIfExists(path); ok && existingVersion != SchemaVersion {
		renamed := fmt.Sprintf("%s.v%d", path, existingVersion)
		if err := os.Rename(path, renamed); err != nil {
			return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "renaming stale-schema replay file")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "opening replay file")
	}
	if _, err := db.Exec("PRAGMA auto_vacuum = FULL;"); err != nil {
		db.Close()
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "enabling auto_vacuum")
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "creating replay schema")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM metadata").Scan(&count); err != nil {
		db.Close()
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "reading metadata row count")
	}
	if count == 0 {
		_, err = db.Exec(
			`INSERT INTO metadata (schema_version, host, port, host_distro, connection_source, app_version, compression_dict) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			SchemaVersion, meta.Host, meta.Port, meta.HostDistro, meta.ConnectionSource, meta.AppVersion, meta.CompressionDict,
		)
	} else {
		var existingSource string
		if scanErr := db.QueryRow("SELECT connection_source FROM metadata").Scan(&existingSource); scanErr == nil {
			if existingSource != "" && existingSource != meta.ConnectionSource {
				db.Close()
				return nil, dolphieerr.New(dolphieerr.ReplayFormat, "refusing to mix connection sources in one replay file: have "+existingSource+", got "+meta.ConnectionSource)
			}
		}
	}
	if err != nil {
		db.Close()
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "writing metadata row")
	}
	return db, nil
}

func readSchemaVersionIfExists(path string) (int, bool) {
	if _, err := os.Stat(path); err != nil {
		return 0, false
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return 0, false
	}
	defer db.Close()
	var v int
	if err := db.QueryRow("SELECT schema_version FROM metadata LIMIT 1").Scan(&v); err != nil {
		return 0, false
	}
	return v, true
}

// openForRead opens an existing replay file read-only.
func openForRead(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "opening replay file read-only")
	}
	return db, nil
}

func readMetadata(ctx context.Context, db *sql.DB) (Metadata, error) {
	var m Metadata
	row := db.QueryRowContext(ctx, "SELECT schema_version, host, port, host_distro, connection_source, app_version, compression_dict FROM metadata LIMIT 1")
	if err := row.Scan(&m.SchemaVersion, &m.Host, &m.Port, &m.HostDistro, &m.ConnectionSource, &m.AppVersion, &m.CompressionDict); err != nil {
		return Metadata{}, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "reading replay metadata")
	}
	if m.SchemaVersion != SchemaVersion {
		return Metadata{}, dolphieerr.New(dolphieerr.ReplayFormat, fmt.Sprintf("replay file schema version %d does not match reader version %d", m.SchemaVersion, SchemaVersion))
	}
	return m, nil
}

// row is one stored replay_data record.
type row struct {
	ID        int64
	Timestamp time.Time
	Data      []byte
}
