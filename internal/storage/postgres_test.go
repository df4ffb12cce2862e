package storage

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

// Note on SQL query matching:
// GORM appends ORDER BY, LIMIT and RETURNING clauses that make exact
// string matching brittle, so these tests use the regexp matcher with
// partial patterns and sqlmock.AnyArg()/AnyTime for variable parameters.

const (
	testAccountID      = "acc-test-123"
	testConversationID = "conv-abc-456"
)

// AnyTime matches any time.Time argument.
type AnyTime struct{}

// Match satisfies the sqlmock.Argument interface.
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// newMockRepo creates a PostgresRepo over a sqlmock connection.
func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
		// Prevent GORM from trying to ping the database.
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		// Skip default transaction to avoid unexpected BEGIN/COMMIT.
		SkipDefaultTransaction: true,
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return &PostgresRepo{db: gormDB}, mock
}

func contextWithTestTenant() context.Context {
	return tenant.WithAccountID(context.Background(), testAccountID)
}
