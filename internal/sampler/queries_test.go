package sampler

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryGlobalStatusDropsNonNumericValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW GLOBAL STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}).
			AddRow("Com_select", "100").
			AddRow("Ssl_cipher", "not-a-number"),
	)

	out, err := queryGlobalStatus(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(100), out["Com_select"])
	_, ok := out["Ssl_cipher"]
	assert.False(t, ok, "non-numeric status values must be dropped, not erroring the cycle")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryGlobalVariablesKeepsRawStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW GLOBAL VARIABLES").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}).
			AddRow("gtid_executed", "3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5"),
	)

	out, err := queryGlobalVariables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5", out["gtid_executed"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryInnoDBMetricsFiltersToEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, count FROM information_schema.innodb_metrics").
		WithArgs("adaptive_hash_searches", "adaptive_hash_searches_btree", "trx_rseg_history_len").
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).
			AddRow("adaptive_hash_searches", 900).
			AddRow("trx_rseg_history_len", 42))

	out, err := queryInnoDBMetrics(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(900), out["adaptive_hash_searches"])
	assert.Equal(t, int64(42), out["trx_rseg_history_len"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowReplicasSkipsRowsWithoutUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW REPLICAS").WillReturnRows(
		sqlmock.NewRows([]string{"Replica_UUID", "Replica_Port"}).
			AddRow("uuid-1", "3306").
			AddRow("", "3307"),
	)

	out, err := ShowReplicas(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3306, out["uuid-1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGTIDSubtract(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GTID_SUBTRACT").
		WithArgs("uuid1:1-10", "uuid1:1-5").
		WillReturnRows(sqlmock.NewRows([]string{"GTID_SUBTRACT(?, ?)"}).AddRow("uuid1:6-10"))

	out, err := GTIDSubtract(context.Background(), db, "uuid1:1-10", "uuid1:1-5")
	require.NoError(t, err)
	assert.Equal(t, "uuid1:6-10", out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGTIDSubtractNullResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GTID_SUBTRACT").WillReturnRows(
		sqlmock.NewRows([]string{"GTID_SUBTRACT(?, ?)"}).AddRow(nil))

	out, err := GTIDSubtract(context.Background(), db, "", "")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM dual", collapseWhitespace("SELECT   1\nFROM\tdual"))
	assert.Equal(t, "", collapseWhitespace("   \n\t  "))
}

func TestParseIntHelpers(t *testing.T) {
	n, ok := parseInt64("  42 ")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = parseInt64("not-a-number")
	assert.False(t, ok)

	i, ok := parseInt("7")
	assert.True(t, ok)
	assert.Equal(t, 7, i)
}

func TestExtractUUIDFromDumpInfo(t *testing.T) {
	info := "Master_id=1, COMPRESSION_ALGORITHM=zlib, SERVER_UUID=abc-123, Replica_IO=Yes"
	assert.Equal(t, "abc-123", extractUUIDFromDumpInfo(info))
	assert.Equal(t, "", extractUUIDFromDumpInfo("no marker here"))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
