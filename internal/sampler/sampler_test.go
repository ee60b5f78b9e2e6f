package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
)

func TestPollDispatchesToProxySQLWhenCapabilityIsSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW MYSQL STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("Questions", "10"))
	mock.ExpectQuery("SHOW MYSQL VARIABLES").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}))
	mock.ExpectQuery("stats_mysql_commands_counters").WillReturnError(errors.New("no such table"))
	mock.ExpectQuery("stats_mysql_connection_pool").WillReturnError(errors.New("no such table"))

	s := New(zap.NewNop(), nil)
	raw, err := s.Poll(context.Background(), db, endpoint.Endpoint{}, endpoint.Capabilities{IsProxySQL: true}, Visibility{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), raw.Status["Questions"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPollMySQLRequiredStatusFailureAbortsAsQueryTransient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW GLOBAL STATUS").WillReturnError(errors.New("connection reset"))

	s := New(zap.NewNop(), nil)
	_, err = s.Poll(context.Background(), db, endpoint.Endpoint{}, endpoint.Capabilities{}, Visibility{})
	require.Error(t, err)
	assert.Equal(t, dolphieerr.QueryTransient, dolphieerr.Classify(err))
}

func TestPollMySQLWithoutPerformanceSchemaRunsOnlyRequiredQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW GLOBAL STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("Com_select", "5"))
	mock.ExpectQuery("SHOW GLOBAL VARIABLES").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}))

	s := New(zap.NewNop(), nil)
	raw, err := s.Poll(context.Background(), db, endpoint.Endpoint{}, endpoint.Capabilities{HasPerformanceSchema: false}, Visibility{})
	require.NoError(t, err, "no optional, visibility-gated, or unconditional perf_schema query runs without HasPerformanceSchema")
	assert.Equal(t, int64(5), raw.Status["Com_select"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPollMySQLProcesslistFailureAbortsWhenVisible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW GLOBAL STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}))
	mock.ExpectQuery("SHOW GLOBAL VARIABLES").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}))
	mock.ExpectQuery("SHOW FULL PROCESSLIST").WillReturnError(errors.New("connection reset"))

	s := New(zap.NewNop(), nil)
	_, err = s.Poll(context.Background(), db, endpoint.Endpoint{}, endpoint.Capabilities{}, Visibility{Processlist: true})
	require.Error(t, err)
	assert.Equal(t, dolphieerr.QueryTransient, dolphieerr.Classify(err))
}

func TestAllVisibleSetsEveryOptionalPanel(t *testing.T) {
	vis := AllVisible()
	assert.True(t, vis.Processlist)
	assert.True(t, vis.Replication)
	assert.True(t, vis.MetadataLocks)
	assert.True(t, vis.DDLProgress)
	assert.True(t, vis.StatementsDigest)
}
