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

// Package sampler issues the periodic query bundle for one MySQL-family or
// ProxySQL endpoint and returns a normalized, timestamped sample.RawSample.
// Derivation never happens here; this package only collects absolute
// counters and state.
package sampler

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/hostcache"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// Sampler holds the collaborators every poll needs: a logger for the
// hot-path (zap) and the host cache used to resolve processlist/replica
// IPs to display names.
type Sampler struct {
	log       *zap.Logger
	hostCache *hostcache.Cache
}

// New builds a Sampler. hostCache may be nil, in which case host resolution
// is a no-op passthrough.
func New(log *zap.Logger, hostCache *hostcache.Cache) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{log: log, hostCache: hostCache}
}

// Poll issues the flavor-correct query bundle against db and returns one
// RawSample. Required queries (status, variables, processlist) failing with
// a classified transient error abort the whole cycle; optional,
// visibility-gated queries are logged and skipped on failure without
// aborting the cycle.
func (s *Sampler) Poll(ctx context.Context, db *sql.DB, ep endpoint.Endpoint, caps endpoint.Capabilities, vis Visibility) (*sample.RawSample, error) {
	if caps.IsProxySQL {
		return s.pollProxySQL(ctx, db, vis)
	}
	return s.pollMySQL(ctx, db, ep, caps, vis)
}

func (s *Sampler) pollMySQL(ctx context.Context, db *sql.DB, ep endpoint.Endpoint, caps endpoint.Capabilities, vis Visibility) (*sample.RawSample, error) {
	raw := &sample.RawSample{Timestamp: time.Now()}

	status, err := queryGlobalStatus(ctx, db)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying global status")
	}
	raw.Status = status

	variables, err := queryGlobalVariables(ctx, db)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying global variables")
	}
	raw.Variables = variables

	if caps.HasPerformanceSchema {
		if metrics, err := queryInnoDBMetrics(ctx, db); err == nil {
			raw.InnoDBMetrics = metrics
		} else {
			s.log.Warn("innodb_metrics query failed", zap.Error(err))
		}
	}

	if vis.Processlist {
		threads, err := s.queryProcesslist(ctx, db)
		if err != nil {
			return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying processlist")
		}
		raw.Processlist = threads
	}

	if vis.Replication {
		if repl, err := queryReplicationStatus(ctx, db, caps); err == nil {
			raw.Replication = repl
		} else {
			s.log.Debug("replication status query failed", zap.Error(err))
		}

		if binlog, err := queryBinlogStatus(ctx, db, caps); err == nil {
			raw.Binlog = binlog
		} else {
			s.log.Debug("binlog status query failed", zap.Error(err))
		}

		if replicas, err := queryAvailableReplicas(ctx, db, caps); err == nil {
			raw.AvailableReplicas = replicas
		} else {
			s.log.Debug("replica discovery query failed", zap.Error(err))
		}
	}

	if vis.MetadataLocks && caps.HasPerformanceSchema {
		if locks, err := queryMetadataLocks(ctx, db); err == nil {
			raw.MetadataLocks = locks
		} else {
			s.log.Warn("metadata_locks query failed, marking panel unavailable this cycle", zap.Error(err))
		}
	}

	if vis.DDLProgress && caps.HasPerformanceSchema {
		if ddl, err := queryDDLProgress(ctx, db); err == nil {
			raw.DDLProgress = ddl
		} else {
			s.log.Warn("ddl progress query failed", zap.Error(err))
		}
	}

	if caps.HasPerformanceSchema && (vis.PerformanceSchemaFileIO || vis.PerformanceSchemaTableIO || vis.StatementsDigest) {
		psSnapshot := &sample.PerformanceSchemaSnapshot{}
		if vis.PerformanceSchemaFileIO {
			if rows, err := queryFileIOWaits(ctx, db); err == nil {
				psSnapshot.FileIO = rows
			} else {
				s.log.Warn("file_summary_by_event_name query failed", zap.Error(err))
			}
		}
		if vis.PerformanceSchemaTableIO {
			if rows, err := queryTableIOWaits(ctx, db); err == nil {
				psSnapshot.TableIO = rows
			} else {
				s.log.Warn("table_io_waits_summary query failed", zap.Error(err))
			}
		}
		if vis.StatementsDigest {
			if rows, err := queryStatementsDigest(ctx, db); err == nil {
				psSnapshot.Statements = rows
			} else {
				s.log.Warn("events_statements_summary_by_digest query failed", zap.Error(err))
			}
		}
		raw.PerformanceSchema = psSnapshot
	}

	if diskIO, err := queryDiskIO(ctx, db, caps); err == nil {
		raw.DiskIO = diskIO
	}

	if applier, err := queryApplierWorkers(ctx, db, caps); err == nil {
		raw.ApplierWorkers = applier
	}

	if caps.IsGalera || caps.IsGroupReplication || caps.IsInnoDBCluster {
		if members, err := queryClusterMembers(ctx, db, caps); err == nil {
			raw.ClusterMembers = members
		} else {
			s.log.Debug("cluster membership query failed", zap.Error(err))
		}
	}

	return raw, nil
}

func (s *Sampler) pollProxySQL(ctx context.Context, db *sql.DB, vis Visibility) (*sample.RawSample, error) {
	raw := &sample.RawSample{Timestamp: time.Now()}

	status, err := queryProxySQLStats(ctx, db)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying stats_mysql_global")
	}
	raw.Status = status

	variables, err := queryProxySQLVariables(ctx, db)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying proxysql global variables")
	}
	raw.Variables = variables

	if commandCounters, err := queryProxySQLCommandCounters(ctx, db); err == nil {
		for k, v := range commandCounters {
			raw.Status[k] = v
		}
	} else {
		s.log.Warn("stats_mysql_commands_counters query failed", zap.Error(err))
	}

	if pool, err := queryProxySQLConnectionPool(ctx, db); err == nil {
		for k, v := range pool {
			raw.Status[k] = v
		}
	} else {
		s.log.Warn("connection pool aggregate query failed", zap.Error(err))
	}

	if vis.Processlist {
		threads, err := s.queryProxySQLProcesslist(ctx, db)
		if err != nil {
			return nil, dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying stats_mysql_processlist")
		}
		raw.Processlist = threads
	}

	return raw, nil
}
