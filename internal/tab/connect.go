package tab

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// detectFlavor maps the raw version() string and a handful of status/
// variable probes onto an endpoint.Flavor, the first step of the connect
// sequence that produces the capability record every later branch reads.
func detectFlavor(versionRaw string, auroraVersion sql.NullString) endpoint.Flavor {
	lower := strings.ToLower(versionRaw)
	switch {
	case auroraVersion.Valid && auroraVersion.String != "":
		return endpoint.FlavorAurora
	case strings.Contains(lower, "mariadb"):
		return endpoint.FlavorMariaDB
	default:
		return endpoint.FlavorMySQL
	}
}

// probeCapabilities runs the connect-time facts query set and derives the
// capability record the rest of the Tab Runtime and its collaborators
// read: all branching reads this record.
func probeCapabilities(ctx context.Context, db *sql.DB) (endpoint.Capabilities, error) {
	var versionRaw, serverUUID string
	var serverID uint32
	row := db.QueryRowContext(ctx, "SELECT @@version, @@server_uuid, @@server_id")
	if err := row.Scan(&versionRaw, &serverUUID, &serverID); err != nil {
		// @@server_uuid does not exist before MySQL 5.6 or on some
		// MariaDB builds; retry without it.
		row = db.QueryRowContext(ctx, "SELECT @@version, @@server_id")
		if err := row.Scan(&versionRaw, &serverID); err != nil {
			return endpoint.Capabilities{}, dolphieerr.Wrap(dolphieerr.Connection, err, "probing server version/identity")
		}
	}

	var auroraVersion sql.NullString
	_ = db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'aurora_version'").Scan(new(string), &auroraVersion)

	flavor := detectFlavor(versionRaw, auroraVersion)

	var psEnabled sql.NullString
	_ = db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'performance_schema'").Scan(new(string), &psEnabled)
	hasPS := psEnabled.String == "ON"

	var wsrepOn sql.NullString
	_ = db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'wsrep_on'").Scan(new(string), &wsrepOn)
	isGalera := wsrepOn.String == "ON"

	var grCount int
	if hasPS {
		_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM performance_schema.replication_group_members").Scan(&grCount)
	}
	isGR := grCount > 0

	return endpoint.DeriveCapabilities(flavor, versionRaw, serverUUID, serverID, hasPS, isGalera, isGR, false, false, false), nil
}
