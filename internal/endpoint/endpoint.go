// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package endpoint models a single monitored target: the immutable
// connection identity plus the mutable facts learned about it once
// connected (flavor, version, topology, capability record).
package endpoint

import "fmt"

// TLSMode mirrors the MySQL client TLS modes.
type TLSMode string

const (
	TLSOff              TLSMode = "off"
	TLSRequired         TLSMode = "required"
	TLSVerifyCA         TLSMode = "verify-ca"
	TLSVerifyIdentity   TLSMode = "verify-identity"
)

// Flavor identifies the server product family.
type Flavor string

const (
	FlavorMySQL    Flavor = "mysql"
	FlavorMariaDB  Flavor = "mariadb"
	FlavorPercona  Flavor = "percona"
	FlavorAurora   Flavor = "aurora"
	FlavorRDS      Flavor = "rds"
	FlavorAzure    Flavor = "azure"
	FlavorProxySQL Flavor = "proxysql"
)

// Endpoint is immutable after construction: the fields a user supplies on
// the command line, in a config file, or as a hostgroup member.
type Endpoint struct {
	Host           string
	Port           int
	Socket         string
	User           string
	Password       string
	TLSMode        TLSMode
	TLSCA          string
	TLSCert        string
	TLSKey         string
	CredentialName string
	HostgroupName  string
	DisplayTitle   string
}

// Key returns the host:port identity used to key replica maps and tab
// identifiers. A unix socket endpoint keys on the socket path instead.
func (e Endpoint) Key() string {
	if e.Socket != "" {
		return e.Socket
	}
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Version is a parsed server version triple plus the raw string MySQL
// reported, so Capabilities derivation can fall back to string comparisons
// for non-semver-shaped reports (MariaDB, Aurora's trailing suffix).
type Version struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

func (v Version) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Capabilities is the capability record described in the design notes: all
// flavor/version branching in the Sampler and Replica Tracker reads this
// record instead of re-deriving flavor checks inline.
type Capabilities struct {
	Flavor                  Flavor
	Version                 Version
	ServerUUID              string
	ServerID                uint32
	HasPerformanceSchema    bool
	SupportsShowReplicas    bool // SHOW REPLICAS / replica uuid->port mapping, MySQL >= 8.0.22 non-MariaDB
	SupportsBinlogStatus    bool // SHOW BINARY LOG STATUS, MySQL >= 8.2
	UsesSourceTerminology   bool // SHOW REPLICA STATUS vs SHOW SLAVE STATUS
	IsMariaDB               bool
	IsAurora                bool
	IsAzure                 bool
	IsGalera                bool
	IsGroupReplication      bool
	IsInnoDBCluster         bool
	IsInnoDBClusterReplica  bool
	IsReplicaSet            bool
	IsProxySQL              bool
}

// MutableState holds the fields that become known only after Connect and
// may change across the endpoint's lifetime.
type MutableState struct {
	Capabilities Capabilities
}
