package sampler

// Visibility lists which optional panels are currently shown in the UI
// contract, so the Sampler only issues the queries that back them:
// metadata-locks, DDL progress, statements-digest, performance-schema
// file/table I/O, and the active-redo-log-count probe are all gated behind
// a visible flag rather than polled unconditionally.
type Visibility struct {
	Processlist              bool
	MetadataLocks            bool
	DDLProgress              bool
	StatementsDigest         bool
	PerformanceSchemaFileIO  bool
	PerformanceSchemaTableIO bool
	ActiveRedoLogCount       bool
	Replication              bool
	Cluster                  bool
}

// AllVisible is a convenience Visibility with every optional panel enabled,
// used by tests and by callers that have not yet wired real panel state.
func AllVisible() Visibility {
	return Visibility{
		Processlist: true, MetadataLocks: true, DDLProgress: true,
		StatementsDigest: true, PerformanceSchemaFileIO: true,
		PerformanceSchemaTableIO: true, ActiveRedoLogCount: true,
		Replication: true, Cluster: true,
	}
}
