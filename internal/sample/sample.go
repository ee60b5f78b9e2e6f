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

// Package sample defines the data bundle a single Sampler.Poll produces:
// every numeric field that will ever be graphed is present here as an
// absolute counter. Derivation never happens at the sampler.
package sample

import "time"

// Thread is one row from SHOW [FULL] PROCESSLIST (MySQL) or
// stats_mysql_processlist (ProxySQL).
type Thread struct {
	ID              int64
	ThreadID        *int64 // underlying OS/connection thread id, when reported separately from the session id
	User            string
	Host            string
	DB              string
	Command         string
	State           string
	TimeSeconds     int64
	Query           string // whitespace-collapsed at ingest

	// Transaction state, populated from information_schema.innodb_trx when visible.
	TrxState      string
	TrxOpState    string
	TrxRowsLocked int64
	TrxRowsModified int64
	TrxTickets    int64
	TrxElapsed    int64

	// ProxySQL-only fields.
	Hostgroup    *int
	FrontendHost string
	BackendHost  string
	ExtendedInfo string
}

// ReplicationStatus is the normalized result of SHOW REPLICA STATUS / SHOW
// SLAVE STATUS, independent of which the flavor/version actually issued.
type ReplicationStatus struct {
	Present             bool
	SourceHost          string
	SourcePort           int
	IOThreadRunning     bool
	SQLThreadRunning    bool
	SecondsBehind       *int64 // nil when NULL (threads stopped or never started)
	LastIOError         string
	LastSQLError        string
	ExecutedGtidSet     string
	RetrievedGtidSet    string
	UsingGTID           string
	AutoPosition        bool
	ReplicaUUID         string
	Channel             string
}

// BinlogStatus is the normalized result of SHOW BINARY LOG STATUS / SHOW
// MASTER STATUS.
type BinlogStatus struct {
	File           string
	Position       int64
	ExecutedGtidSet string
}

// MetadataLock is one row of performance_schema.metadata_locks.
type MetadataLock struct {
	ObjectType   string
	ObjectSchema string
	ObjectName   string
	LockType     string
	LockStatus   string
	OwnerThread  int64
}

// DDLProgress is one row of performance_schema DDL progress reporting
// (innodb_ddl_log / information_schema.innodb_alter_table equivalents).
type DDLProgress struct {
	Query         string
	PercentDone   float64
	TimeRemaining int64
}

// FileIOWait and TableIOWait are performance_schema file/table I/O summary
// rows, keyed by object/event name upstream.
type FileIOWait struct {
	EventName string
	CountStar int64
	SumTimerWait int64
}

type TableIOWait struct {
	ObjectSchema string
	ObjectName   string
	CountStar    int64
	SumTimerWait int64
}

// StatementDigest is one row of performance_schema.events_statements_summary_by_digest.
type StatementDigest struct {
	Digest       string
	DigestText   string
	CountStar    int64
	SumTimerWait int64
	SumRowsSent  int64
	SumRowsExamined int64
}

// PerformanceSchemaSnapshot bundles the optional P_S panels, only populated
// when the corresponding panel is visible (visibility-gated queries).
type PerformanceSchemaSnapshot struct {
	FileIO     []FileIOWait
	TableIO    []TableIOWait
	Statements []StatementDigest
}

// ApplierWorker is one row of performance_schema.replication_applier_status_by_worker.
type ApplierWorker struct {
	WorkerID          int64
	ServiceState      string
	TotalThreadEvents int64
}

// ClusterMember is one row from a Group Replication / InnoDB Cluster / Galera
// membership view.
type ClusterMember struct {
	MemberID    string
	Host        string
	Port        int
	State       string
	Role        string
}

// AvailableReplica is one row of the primary's replica-discovery query
// (performance_schema threads running BINLOG_DUMP, or its information_schema
// fallback).
type AvailableReplica struct {
	Host        string
	ThreadID    int64
	ReplicaUUID string // empty for MariaDB, which cannot report this
}

// DiskIO is an aggregate OS-level disk I/O counter pair, when the flavor
// exposes one (InnoDB I/O capacity metrics).
type DiskIO struct {
	ReadBytes  int64
	WriteBytes int64
}

// RawSample is the timestamped bundle produced by one poll cycle.
type RawSample struct {
	Timestamp time.Time

	// Status is SHOW GLOBAL STATUS (or ProxySQL's stats_mysql_global),
	// name -> integer counter.
	Status map[string]int64

	// Variables is SHOW GLOBAL VARIABLES, name -> raw string. Numeric-looking
	// values are left as strings here; callers parse on demand since some
	// variables (gtid_executed) are never numeric.
	Variables map[string]string

	// InnoDBMetrics is the filtered information_schema.innodb_metrics subset
	// the Sampler cares about (adaptive hash searches, btree searches,
	// trx_rseg_history_len, ...).
	InnoDBMetrics map[string]int64

	Replication        ReplicationStatus
	Binlog             BinlogStatus
	Processlist        map[int64]*Thread
	MetadataLocks      []MetadataLock
	DDLProgress        []DDLProgress
	PerformanceSchema  *PerformanceSchemaSnapshot
	DiskIO             *DiskIO
	ApplierWorkers      []ApplierWorker
	ClusterMembers     []ClusterMember
	AvailableReplicas  []AvailableReplica

	// HeartbeatLagSeconds holds heartbeat-table lag, an alternative lag
	// source to Replication.SecondsBehind. Sampler.Poll does not fill it,
	// even when a heartbeat table is configured, and no derivation reads it.
	HeartbeatLagSeconds *int64
}

// StatusInt64 returns Status[name] and whether it was present, to keep call
// sites from repeating the same guarded map read.
func (r *RawSample) StatusInt64(name string) (int64, bool) {
	v, ok := r.Status[name]
	return v, ok
}
