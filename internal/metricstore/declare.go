package metricstore

import "github.com/dolphie-go/dolphie/internal/endpoint"

// Color names used across series declarations. Actual RGB values belong to
// the (external) rendering layer; this module only carries the symbolic
// name so a theme can map it, matching the original's palette naming.
const (
	ColorGray   = "gray"
	ColorBlue   = "blue"
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorYellow = "yellow"
	ColorPurple = "purple"
	ColorOrange = "orange"
)

func perSec(name, label, color string) SeriesDecl {
	return SeriesDecl{Name: name, Label: label, Color: color, Graphable: true, CreateSwitch: true, PerSecond: true, SaveHistory: true}
}

func cumulative(name, label, color string) SeriesDecl {
	return SeriesDecl{Name: name, Label: label, Color: color, Graphable: true, CreateSwitch: true, PerSecond: false, SaveHistory: true}
}

// mysqlOnly / proxysqlOnly are the flavor filters used by every group below.
var mysqlOnly = []endpoint.Flavor{
	endpoint.FlavorMySQL, endpoint.FlavorMariaDB, endpoint.FlavorPercona,
	endpoint.FlavorAurora, endpoint.FlavorRDS, endpoint.FlavorAzure,
}
var proxysqlOnly = []endpoint.Flavor{endpoint.FlavorProxySQL}

// Declarations is the full static table of graph-tab groupings, grounded
// 1:1 on the original's dataclasses (MetricManager.py): group names, tab
// labels and series match; only the representation (Go struct literals
// instead of Python dataclasses) differs.
var Declarations = []GroupDecl{
	{
		Name: "dml", TabLabel: "DML", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Queries", "Queries", ColorBlue),
			perSec("Com_select", "Selects", ColorGreen),
			perSec("Com_insert", "Inserts", ColorYellow),
			perSec("Com_update", "Updates", ColorOrange),
			perSec("Com_delete", "Deletes", ColorRed),
			perSec("Com_replace", "Replaces", ColorPurple),
			perSec("Com_commit", "Commits", ColorGray),
			perSec("Com_rollback", "Rollbacks", ColorRed),
		},
	},
	{
		Name: "replication_lag", TabLabel: "Replication", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("lag", "Lag", ColorRed)},
	},
	{
		Name: "checkpoint", TabLabel: "Checkpoint", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("Innodb_checkpoint_age", "Checkpoint Age", ColorYellow)},
	},
	{
		Name: "buffer_pool_requests", TabLabel: "BP Requests", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Innodb_buffer_pool_read_requests", "Read Requests", ColorGreen),
			perSec("Innodb_buffer_pool_write_requests", "Write Requests", ColorYellow),
			perSec("Innodb_buffer_pool_reads", "Disk Reads", ColorRed),
		},
	},
	{
		Name: "adaptive_hash_index", TabLabel: "AHI", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("adaptive_hash_searches", "Hash Searches", ColorGreen),
			perSec("adaptive_hash_searches_btree", "Non-Hash Searches", ColorRed),
			cumulative("hit_ratio", "Hit Ratio", ColorBlue),
		},
	},
	{
		Name: "redo_log", TabLabel: "Redo Log", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			cumulative("Innodb_lsn_current", "Current LSN", ColorBlue),
			perSec("Active_redo_log_count", "Active Redo Logs", ColorPurple),
		},
	},
	{
		Name: "table_cache", TabLabel: "Table Cache", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Table_open_cache_hits", "Hits", ColorGreen),
			perSec("Table_open_cache_misses", "Misses", ColorRed),
			perSec("Table_open_cache_overflows", "Overflows", ColorOrange),
		},
	},
	{
		Name: "threads", TabLabel: "Threads", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			cumulative("Threads_connected", "Connected", ColorBlue),
			cumulative("Threads_running", "Running", ColorGreen),
		},
	},
	{
		Name: "temporary_objects", TabLabel: "Temp Objects", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Created_tmp_tables", "Tmp Tables", ColorBlue),
			perSec("Created_tmp_disk_tables", "Tmp Disk Tables", ColorRed),
			perSec("Created_tmp_files", "Tmp Files", ColorYellow),
		},
	},
	{
		Name: "aborted_connections", TabLabel: "Aborted Connections", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Aborted_clients", "Aborted Clients", ColorRed),
			perSec("Aborted_connects", "Aborted Connects", ColorOrange),
		},
	},
	{
		Name: "disk_io", TabLabel: "Disk I/O", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("io_read", "Read Bytes/s", ColorGreen),
			perSec("io_write", "Write Bytes/s", ColorYellow),
		},
	},
	{
		Name: "locks", TabLabel: "Locks", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("metadata_lock_count", "Metadata Locks", ColorRed)},
	},
	{
		Name: "history_list_length", TabLabel: "History List", Flavors: mysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("trx_rseg_history_len", "History List Length", ColorPurple)},
	},
	{
		Name: "proxysql_connections", TabLabel: "Connections", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Client_Connections_non_idle", "Client Non-Idle", ColorBlue),
			perSec("Client_Connections_aborted", "Client Aborted", ColorRed),
			cumulative("Client_Connections_connected", "Client Connected", ColorGreen),
			perSec("Client_Connections_created", "Client Created", ColorYellow),
			perSec("Server_Connections_aborted", "Server Aborted", ColorRed),
			cumulative("Server_Connections_connected", "Server Connected", ColorGreen),
			perSec("Server_Connections_created", "Server Created", ColorYellow),
			perSec("Access_Denied_Wrong_Password", "Access Denied", ColorOrange),
		},
	},
	{
		Name: "proxysql_queries_data_network", TabLabel: "Query Data Rates", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{
			perSec("Queries_backends_bytes_recv", "Backend Recv", ColorBlue),
			perSec("Queries_backends_bytes_sent", "Backend Sent", ColorGreen),
			perSec("Queries_frontends_bytes_recv", "Frontend Recv", ColorYellow),
			perSec("Queries_frontends_bytes_sent", "Frontend Sent", ColorPurple),
		},
	},
	{
		Name: "proxysql_active_trx", TabLabel: "Active TRX", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("Active_Transactions", "Active Transactions", ColorOrange)},
	},
	{
		Name: "proxysql_multiplex_efficiency", TabLabel: "Multiplex Efficiency", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: []SeriesDecl{cumulative("proxysql_multiplex_efficiency_ratio", "Multiplex Efficiency", ColorGreen)},
	},
	{
		Name: "proxysql_select_command_stats", TabLabel: "SELECT Command Stats", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: commandStatsBuckets(),
	},
	{
		Name: "proxysql_total_command_stats", TabLabel: "Total Command Stats", Flavors: proxysqlOnly, ReplayCompatible: true,
		Series: commandStatsBuckets(),
	},
}

// commandStatsBuckets is the histogram bucket series shared by ProxySQL's
// per-command and total command-stats graph tabs (stats_mysql_commands_counters).
func commandStatsBuckets() []SeriesDecl {
	buckets := []string{"cnt_100us", "cnt_500us", "cnt_1ms", "cnt_5ms", "cnt_10ms", "cnt_50ms", "cnt_100ms", "cnt_500ms", "cnt_1s", "cnt_5s", "cnt_10s", "cnt_INFs"}
	decls := make([]SeriesDecl, 0, len(buckets))
	for _, b := range buckets {
		decls = append(decls, perSec(b, b, ColorBlue))
	}
	return decls
}
