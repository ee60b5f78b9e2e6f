package endpoint

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// minShowReplicas is the first MySQL version to support SHOW REPLICAS with
// a replica uuid column, used for replica port resolution.
var minShowReplicas = semver.MustParse("8.0.22")

// minBinlogStatus is the first MySQL version where SHOW MASTER STATUS is
// replaced by SHOW BINARY LOG STATUS.
var minBinlogStatus = semver.MustParse("8.2.0")

// DeriveCapabilities builds the capability record from the raw facts a
// connect-time probe gathers. versionRaw is the server's reported
// version() string (e.g. "8.0.34-log", "10.11.6-MariaDB", "8.0.28-aurora").
func DeriveCapabilities(flavor Flavor, versionRaw string, serverUUID string, serverID uint32, hasPS bool, isGalera, isGR, isInnoDBCluster, isInnoDBClusterReplica, isReplicaSet bool) Capabilities {
	v := ParseVersion(versionRaw)
	isMariaDB := flavor == FlavorMariaDB || strings.Contains(strings.ToLower(versionRaw), "mariadb")
	isAurora := flavor == FlavorAurora || strings.Contains(strings.ToLower(versionRaw), "aurora")
	isAzure := flavor == FlavorAzure
	isProxySQL := flavor == FlavorProxySQL

	caps := Capabilities{
		Flavor:                 flavor,
		Version:                v,
		ServerUUID:             serverUUID,
		ServerID:               serverID,
		HasPerformanceSchema:   hasPS,
		IsMariaDB:              isMariaDB,
		IsAurora:               isAurora,
		IsAzure:                isAzure,
		IsGalera:               isGalera,
		IsGroupReplication:     isGR,
		IsInnoDBCluster:        isInnoDBCluster,
		IsInnoDBClusterReplica: isInnoDBClusterReplica,
		IsReplicaSet:           isReplicaSet,
		IsProxySQL:             isProxySQL,
	}

	if isProxySQL {
		return caps
	}

	// Compare on the parsed triple only: a raw suffix such as "-log" would
	// parse as a semver prerelease and order below the release it names.
	sv := semver.New(uint64(v.Major), uint64(v.Minor), uint64(v.Patch), "", "")
	caps.SupportsShowReplicas = !isMariaDB && !sv.LessThan(minShowReplicas)
	caps.SupportsBinlogStatus = !isMariaDB && !sv.LessThan(minBinlogStatus)
	caps.UsesSourceTerminology = !isMariaDB && sv.Major() >= 8

	return caps
}

// ParseVersion extracts a semver-shaped major.minor.patch out of a MySQL
// version() string, tolerating trailing flavor suffixes like "-log",
// "-MariaDB", "-aurora" that are not valid semver prerelease syntax.
func ParseVersion(raw string) Version {
	core := raw
	if idx := strings.IndexAny(core, "-+ "); idx >= 0 {
		core = core[:idx]
	}
	sv, err := semver.NewVersion(core)
	if err != nil {
		return Version{Raw: raw}
	}
	return Version{
		Major: int(sv.Major()),
		Minor: int(sv.Minor()),
		Patch: int(sv.Patch()),
		Raw:   raw,
	}
}
