package sampler

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// queryGlobalStatus issues SHOW GLOBAL STATUS and normalizes every
// numeric-looking value into a signed 64-bit integer, dropping the rest
// (counters that are never graphed, e.g. Ssl_* fingerprints, are simply
// absent from the returned map rather than erroring the cycle).
func queryGlobalStatus(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, "SHOW GLOBAL STATUS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if n, ok := parseInt64(value); ok {
			out[name] = n
		}
	}
	return out, rows.Err()
}

// queryGlobalVariables issues SHOW GLOBAL VARIABLES, keeping every value as
// a raw string (some, like gtid_executed, are never numeric; callers parse
// on demand).
func queryGlobalVariables(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW GLOBAL VARIABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// innodbMetricNames is the subset of information_schema.innodb_metrics the
// Derivation Engine cares about: adaptive-hash searches/misses and
// the history-list-length counter.
var innodbMetricNames = []string{"adaptive_hash_searches", "adaptive_hash_searches_btree", "trx_rseg_history_len"}

func queryInnoDBMetrics(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name, count FROM information_schema.innodb_metrics WHERE name IN (?, ?, ?) AND status = 'enabled'",
		innodbMetricNames[0], innodbMetricNames[1], innodbMetricNames[2],
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}

// queryProcesslist issues SHOW FULL PROCESSLIST and joins in
// information_schema.innodb_trx transaction state when visible, matching
// the Thread definition. Query text is whitespace-collapsed at ingest.
func (s *Sampler) queryProcesslist(ctx context.Context, db *sql.DB) (map[int64]*sample.Thread, error) {
	rows, err := db.QueryContext(ctx, "SHOW FULL PROCESSLIST")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*sample.Thread)
	for rows.Next() {
		var id int64
		var user, host, command, state string
		var db, info sql.NullString
		var timeSeconds sql.NullInt64
		if err := rows.Scan(&id, &user, &host, &db, &command, &timeSeconds, &state, &info); err != nil {
			return nil, err
		}
		th := &sample.Thread{
			ID:          id,
			User:        user,
			Host:        s.resolveHost(ctx, host),
			DB:          db.String,
			Command:     command,
			State:       state,
			TimeSeconds: timeSeconds.Int64,
			Query:       collapseWhitespace(info.String),
		}
		out[id] = th
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if trx, err := queryInnodbTrx(ctx, db); err == nil {
		for id, t := range trx {
			if th, ok := out[id]; ok {
				th.TrxState = t.TrxState
				th.TrxOpState = t.TrxOpState
				th.TrxRowsLocked = t.TrxRowsLocked
				th.TrxRowsModified = t.TrxRowsModified
				th.TrxTickets = t.TrxTickets
				th.TrxElapsed = t.TrxElapsed
			}
		}
	}
	return out, nil
}

func queryInnodbTrx(ctx context.Context, db *sql.DB) (map[int64]sample.Thread, error) {
	rows, err := db.QueryContext(ctx, `SELECT trx_mysql_thread_id, trx_state, trx_operation_state,
		trx_rows_locked, trx_rows_modified, trx_concurrency_tickets,
		TIMESTAMPDIFF(SECOND, trx_started, NOW()) FROM information_schema.innodb_trx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]sample.Thread)
	for rows.Next() {
		var id int64
		var state string
		var opState sql.NullString
		var rowsLocked, rowsModified, tickets, elapsed sql.NullInt64
		if err := rows.Scan(&id, &state, &opState, &rowsLocked, &rowsModified, &tickets, &elapsed); err != nil {
			return nil, err
		}
		out[id] = sample.Thread{
			TrxState: state, TrxOpState: opState.String,
			TrxRowsLocked: rowsLocked.Int64, TrxRowsModified: rowsModified.Int64,
			TrxTickets: tickets.Int64, TrxElapsed: elapsed.Int64,
		}
	}
	return out, rows.Err()
}

// replicationStatusQuery returns the flavor/version-correct statement:
// MySQL/Percona/Aurora/RDS/Azure >=8 use SHOW REPLICA STATUS, everything
// else SHOW SLAVE STATUS.
func replicationStatusQuery(caps endpoint.Capabilities) string {
	if caps.UsesSourceTerminology {
		return "SHOW REPLICA STATUS"
	}
	return "SHOW SLAVE STATUS"
}

// queryReplicationStatus scans the variable-width SHOW [REPLICA|SLAVE]
// STATUS result generically by column name, since the column set differs
// across flavors and versions.
// QueryReplicationStatus is the exported form of queryReplicationStatus,
// used directly by the Tab Runtime for the primary's own status and by the
// Replica Tracker (via a closure) for each tracked replica.
func QueryReplicationStatus(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) (sample.ReplicationStatus, error) {
	return queryReplicationStatus(ctx, db, caps)
}

func queryReplicationStatus(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) (sample.ReplicationStatus, error) {
	row, err := scanSingleRowByColumn(ctx, db, replicationStatusQuery(caps))
	if err != nil {
		return sample.ReplicationStatus{}, err
	}
	if row == nil {
		return sample.ReplicationStatus{}, nil
	}

	status := sample.ReplicationStatus{
		Present:          true,
		SourceHost:       firstNonEmpty(row["Source_Host"], row["Master_Host"]),
		IOThreadRunning:  firstNonEmpty(row["Replica_IO_Running"], row["Slave_IO_Running"]) == "Yes",
		SQLThreadRunning: firstNonEmpty(row["Replica_SQL_Running"], row["Slave_SQL_Running"]) == "Yes",
		LastIOError:      firstNonEmpty(row["Last_IO_Error"]),
		LastSQLError:     firstNonEmpty(row["Last_SQL_Error"]),
		ExecutedGtidSet:  firstNonEmpty(row["Executed_Gtid_Set"]),
		RetrievedGtidSet: firstNonEmpty(row["Retrieved_Gtid_Set"]),
		UsingGTID:        row["Using_Gtid"],
	}
	status.AutoPosition = row["Auto_Position"] == "1"
	status.Channel = row["Channel_Name"]
	status.ReplicaUUID = caps.ServerUUID

	if port, ok := parseIntFromRow(row, "Source_Port", "Master_Port"); ok {
		status.SourcePort = port
	}
	if secs, ok := parseInt64FromRow(row, "Seconds_Behind_Source", "Seconds_Behind_Master"); ok {
		status.SecondsBehind = &secs
	}
	return status, nil
}

func queryBinlogStatus(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) (sample.BinlogStatus, error) {
	stmt := "SHOW MASTER STATUS"
	if caps.SupportsBinlogStatus {
		stmt = "SHOW BINARY LOG STATUS"
	}
	row, err := scanSingleRowByColumn(ctx, db, stmt)
	if err != nil {
		return sample.BinlogStatus{}, err
	}
	if row == nil {
		return sample.BinlogStatus{}, nil
	}
	pos, _ := parseInt64(row["Position"])
	return sample.BinlogStatus{
		File:            row["File"],
		Position:        pos,
		ExecutedGtidSet: row["Executed_Gtid_Set"],
	}, nil
}

// queryAvailableReplicas discovers replicas via performance_schema threads
// running the replication dump command, falling back to
// information_schema.processlist when performance_schema is disabled.
// MariaDB cannot report a replica uuid in either path.
func queryAvailableReplicas(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) ([]sample.AvailableReplica, error) {
	var rows *sql.Rows
	var err error
	if caps.HasPerformanceSchema {
		rows, err = db.QueryContext(ctx, `SELECT t.processlist_host, t.thread_id,
			IFNULL(t.processlist_info, '') FROM performance_schema.threads t
			WHERE t.processlist_command = 'Binlog Dump' OR t.processlist_command = 'Binlog Dump GTID'`)
	} else {
		rows, err = db.QueryContext(ctx, `SELECT host, id, '' FROM information_schema.processlist
			WHERE command LIKE 'Binlog Dump%'`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sample.AvailableReplica
	for rows.Next() {
		var host string
		var threadID int64
		var info string
		if err := rows.Scan(&host, &threadID, &info); err != nil {
			return nil, err
		}
		host, _, _ = strings.Cut(host, ":")
		replica := sample.AvailableReplica{Host: host, ThreadID: threadID}
		if !caps.IsMariaDB {
			replica.ReplicaUUID = extractUUIDFromDumpInfo(info)
		}
		out = append(out, replica)
	}
	return out, rows.Err()
}

// ShowReplicas issues SHOW REPLICAS (MySQL >= 8.0.22, non-MariaDB) to map
// replica server uuid -> reported port, used by the Replica Tracker to
// refresh its uuid->port map whenever the replica count changes.
// Exported for the Tab Runtime to pass as the Reconcile showReplicas hook.
func ShowReplicas(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, "SHOW REPLICAS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := rowToMap(cols, vals)
		uuid := m["Replica_UUID"]
		if uuid == "" {
			continue
		}
		if port, ok := parseInt(m["Replica_Port"]); ok {
			out[uuid] = port
		}
	}
	return out, rows.Err()
}

// GTIDSubtract runs SELECT GTID_SUBTRACT(set1, set2) on db, used by the
// Replica Tracker to compute a replica's errant-transaction set.
func GTIDSubtract(ctx context.Context, db *sql.DB, set1, set2 string) (string, error) {
	var result sql.NullString
	row := db.QueryRowContext(ctx, "SELECT GTID_SUBTRACT(?, ?)", set1, set2)
	if err := row.Scan(&result); err != nil {
		return "", err
	}
	return result.String, nil
}

func queryMetadataLocks(ctx context.Context, db *sql.DB) ([]sample.MetadataLock, error) {
	rows, err := db.QueryContext(ctx, `SELECT OBJECT_TYPE, OBJECT_SCHEMA, OBJECT_NAME, LOCK_TYPE, LOCK_STATUS, OWNER_THREAD_ID
		FROM performance_schema.metadata_locks WHERE OBJECT_SCHEMA NOT IN ('performance_schema', 'mysql')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sample.MetadataLock
	for rows.Next() {
		var l sample.MetadataLock
		var schema, name sql.NullString
		if err := rows.Scan(&l.ObjectType, &schema, &name, &l.LockType, &l.LockStatus, &l.OwnerThread); err != nil {
			return nil, err
		}
		l.ObjectSchema = schema.String
		l.ObjectName = name.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func queryDDLProgress(ctx context.Context, db *sql.DB) ([]sample.DDLProgress, error) {
	rows, err := db.QueryContext(ctx, `SELECT sql_text, cost_progress, time_remaining
		FROM performance_schema.events_stages_current
		JOIN information_schema.processlist ON thread_id = processlist_id
		WHERE event_name LIKE 'stage/innodb/alter%' OR event_name LIKE 'stage/sql/alter%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sample.DDLProgress
	for rows.Next() {
		var d sample.DDLProgress
		var remaining sql.NullInt64
		if err := rows.Scan(&d.Query, &d.PercentDone, &remaining); err != nil {
			return nil, err
		}
		d.TimeRemaining = remaining.Int64
		d.Query = collapseWhitespace(d.Query)
		out = append(out, d)
	}
	return out, rows.Err()
}

func queryFileIOWaits(ctx context.Context, db *sql.DB) ([]sample.FileIOWait, error) {
	rows, err := db.QueryContext(ctx, `SELECT EVENT_NAME, COUNT_STAR, SUM_TIMER_WAIT
		FROM performance_schema.file_summary_by_event_name WHERE COUNT_STAR > 0 ORDER BY SUM_TIMER_WAIT DESC LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.FileIOWait
	for rows.Next() {
		var w sample.FileIOWait
		if err := rows.Scan(&w.EventName, &w.CountStar, &w.SumTimerWait); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func queryTableIOWaits(ctx context.Context, db *sql.DB) ([]sample.TableIOWait, error) {
	rows, err := db.QueryContext(ctx, `SELECT OBJECT_SCHEMA, OBJECT_NAME, COUNT_STAR, SUM_TIMER_WAIT
		FROM performance_schema.table_io_waits_summary_by_table
		WHERE COUNT_STAR > 0 ORDER BY SUM_TIMER_WAIT DESC LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.TableIOWait
	for rows.Next() {
		var w sample.TableIOWait
		if err := rows.Scan(&w.ObjectSchema, &w.ObjectName, &w.CountStar, &w.SumTimerWait); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func queryStatementsDigest(ctx context.Context, db *sql.DB) ([]sample.StatementDigest, error) {
	rows, err := db.QueryContext(ctx, `SELECT DIGEST, DIGEST_TEXT, COUNT_STAR, SUM_TIMER_WAIT, SUM_ROWS_SENT, SUM_ROWS_EXAMINED
		FROM performance_schema.events_statements_summary_by_digest
		ORDER BY SUM_TIMER_WAIT DESC LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.StatementDigest
	for rows.Next() {
		var d sample.StatementDigest
		var digestText sql.NullString
		if err := rows.Scan(&d.Digest, &digestText, &d.CountStar, &d.SumTimerWait, &d.SumRowsSent, &d.SumRowsExamined); err != nil {
			return nil, err
		}
		d.DigestText = collapseWhitespace(digestText.String)
		out = append(out, d)
	}
	return out, rows.Err()
}

// queryDiskIO reports the OS-level I/O aggregate Dolphie graphs alongside
// InnoDB I/O capacity. When performance_schema is unavailable the query is
// skipped and (nil, err) lets the caller leave DiskIO nil.
func queryDiskIO(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) (*sample.DiskIO, error) {
	if !caps.HasPerformanceSchema {
		return nil, errNotSupported
	}
	row, err := scanSingleRowByColumn(ctx, db, `SELECT
		SUM(CASE WHEN event_name LIKE '%read%' THEN count_bytes ELSE 0 END) AS read_bytes,
		SUM(CASE WHEN event_name LIKE '%write%' THEN count_bytes ELSE 0 END) AS write_bytes
		FROM performance_schema.file_summary_by_instance`)
	if err != nil || row == nil {
		return nil, err
	}
	read, _ := parseInt64(row["read_bytes"])
	write, _ := parseInt64(row["write_bytes"])
	return &sample.DiskIO{ReadBytes: read, WriteBytes: write}, nil
}

func queryApplierWorkers(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) ([]sample.ApplierWorker, error) {
	if !caps.HasPerformanceSchema {
		return nil, errNotSupported
	}
	rows, err := db.QueryContext(ctx, `SELECT WORKER_ID, SERVICE_STATE, 0
		FROM performance_schema.replication_applier_status_by_worker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.ApplierWorker
	for rows.Next() {
		var w sample.ApplierWorker
		if err := rows.Scan(&w.WorkerID, &w.ServiceState, &w.TotalThreadEvents); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// queryClusterMembers dispatches to the flavor-correct membership view:
// Galera's wsrep status variable set, Group Replication/InnoDB Cluster's
// performance_schema.replication_group_members.
func queryClusterMembers(ctx context.Context, db *sql.DB, caps endpoint.Capabilities) ([]sample.ClusterMember, error) {
	if caps.IsGalera {
		return queryGaleraMembers(ctx, db)
	}
	return queryGroupReplicationMembers(ctx, db)
}

func queryGroupReplicationMembers(ctx context.Context, db *sql.DB) ([]sample.ClusterMember, error) {
	rows, err := db.QueryContext(ctx, `SELECT MEMBER_ID, MEMBER_HOST, MEMBER_PORT, MEMBER_STATE, MEMBER_ROLE
		FROM performance_schema.replication_group_members`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.ClusterMember
	for rows.Next() {
		var m sample.ClusterMember
		if err := rows.Scan(&m.MemberID, &m.Host, &m.Port, &m.State, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func queryGaleraMembers(ctx context.Context, db *sql.DB) ([]sample.ClusterMember, error) {
	rows, err := db.QueryContext(ctx, `SHOW STATUS LIKE 'wsrep_incoming_addresses'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.ClusterMember
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		for _, addr := range strings.Split(value, ",") {
			host, portStr, found := strings.Cut(addr, ":")
			if !found {
				continue
			}
			port, _ := strconv.Atoi(portStr)
			out = append(out, sample.ClusterMember{Host: host, Port: port, State: "unknown"})
		}
	}
	return out, rows.Err()
}

// queryHeartbeatLag computes replication lag from a pt-heartbeat-style
// table, an alternative lag source to Seconds_Behind_Source/Master when a
// heartbeat table is configured.
func queryHeartbeatLag(ctx context.Context, db *sql.DB, table string) (*int64, error) {
	row := db.QueryRowContext(ctx, "SELECT ROUND(UNIX_TIMESTAMP() - UNIX_TIMESTAMP(ts)) FROM "+table+" ORDER BY ts DESC LIMIT 1")
	var lag int64
	if err := row.Scan(&lag); err != nil {
		return nil, err
	}
	return &lag, nil
}

// --- ProxySQL query set ---

func queryProxySQLStats(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, "SHOW MYSQL STATUS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if n, ok := parseInt64(value); ok {
			out[name] = n
		}
	}
	return out, rows.Err()
}

func queryProxySQLVariables(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW MYSQL VARIABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

func queryProxySQLCommandCounters(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT Command, cnt_100us, cnt_500us, cnt_1ms, cnt_5ms, cnt_10ms,
		cnt_50ms, cnt_100ms, cnt_500ms, cnt_1s, cnt_5s, cnt_10s, cnt_INFs
		FROM stats_mysql_commands_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	buckets := []string{"cnt_100us", "cnt_500us", "cnt_1ms", "cnt_5ms", "cnt_10ms", "cnt_50ms", "cnt_100ms", "cnt_500ms", "cnt_1s", "cnt_5s", "cnt_10s", "cnt_INFs"}
	for rows.Next() {
		var command string
		vals := make([]int64, len(buckets))
		ptrs := make([]interface{}, 0, len(buckets)+1)
		ptrs = append(ptrs, &command)
		for i := range vals {
			ptrs = append(ptrs, &vals[i])
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, name := range buckets {
			out[name] += vals[i]
		}
	}
	return out, rows.Err()
}

func queryProxySQLConnectionPool(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	row, err := scanSingleRowByColumn(ctx, db, `SELECT SUM(ConnUsed) AS conn_pool_connections
		FROM stats_mysql_connection_pool`)
	if err != nil || row == nil {
		return nil, err
	}
	out := make(map[string]int64)
	if v, ok := parseInt64(row["conn_pool_connections"]); ok {
		out["conn_pool_connections"] = v
	}
	return out, nil
}

func (s *Sampler) queryProxySQLProcesslist(ctx context.Context, db *sql.DB) (map[int64]*sample.Thread, error) {
	rows, err := db.QueryContext(ctx, `SELECT SessionID, user, db, command, time_ms, state, hostgroup, srv_host, extended_info
		FROM stats_mysql_processlist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*sample.Thread)
	for rows.Next() {
		var id int64
		var user, dbName, command, state, srvHost string
		var timeMS int64
		var hostgroup int
		var extended sql.NullString
		if err := rows.Scan(&id, &user, &dbName, &command, &timeMS, &state, &hostgroup, &srvHost, &extended); err != nil {
			return nil, err
		}
		hg := hostgroup
		out[id] = &sample.Thread{
			ID: id, User: user, DB: dbName, Command: command, State: state,
			TimeSeconds: timeMS / 1000, Hostgroup: &hg, BackendHost: srvHost,
			ExtendedInfo: extended.String,
		}
	}
	return out, rows.Err()
}

// --- helpers ---

var errNotSupported = sql.ErrNoRows

// resolveHost delegates to the configured host cache; with no cache
// attached, the raw host string passes through unchanged.
func (s *Sampler) resolveHost(ctx context.Context, hostPort string) string {
	if s.hostCache == nil {
		return hostPort
	}
	ip, _, found := strings.Cut(hostPort, ":")
	if !found {
		ip = hostPort
	}
	if resolved := s.hostCache.Resolve(ctx, ip); resolved != "" {
		return resolved
	}
	return hostPort
}

// scanSingleRowByColumn runs query and returns its first row as a
// column-name -> string map, or nil if the result set is empty. This is
// used for SHOW REPLICA/SLAVE STATUS and SHOW MASTER/BINARY LOG STATUS,
// whose column sets vary by flavor and version.
func scanSingleRowByColumn(ctx context.Context, db *sql.DB, query string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return rowToMap(cols, vals), nil
}

func rowToMap(cols []string, vals []sql.NullString) map[string]string {
	m := make(map[string]string, len(cols))
	for i, c := range cols {
		m[c] = vals[i].String
	}
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntFromRow(row map[string]string, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return parseInt(v)
		}
	}
	return 0, false
}

func parseInt64FromRow(row map[string]string, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return parseInt64(v)
		}
	}
	return 0, false
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// collapseWhitespace implements the whitespace-collapsing ingest rule
// applied to every query-text field (processlist Info, DDL progress,
// statement digests).
func collapseWhitespace(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// extractUUIDFromDumpInfo pulls the replica server_uuid out of a
// performance_schema.threads.processlist_info string of the form
// "... COMPRESSION_ALGORITHM=..., SERVER_UUID=<uuid>, ...", the form MySQL
// versions after 8.0 report for a connected replica's dump thread.
func extractUUIDFromDumpInfo(info string) string {
	const marker = "SERVER_UUID="
	idx := strings.Index(info, marker)
	if idx < 0 {
		return ""
	}
	rest := info[idx+len(marker):]
	end := strings.IndexAny(rest, ", ")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
