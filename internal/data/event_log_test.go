package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kratos/kratos/v2/log"
	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mrveiss/autobot-sentinel/internal/model"
)

// setupEventTestDB creates a test database connection with sqlmock.
func setupEventTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	cleanup := func() {
		sqlDB.Close()
	}

	return gormDB, mock, cleanup
}

func TestEventLogWritesBreakerEvent(t *testing.T) {
	db, mock, dbCleanup := setupEventTestDB(t)
	defer dbCleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `breaker_events`").
		WithArgs("ai-stack", "closed", "open", model.EventBreakerOpened, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	l, cleanup := NewEventLog(db, log.DefaultLogger)
	l.RecordBreakerEvent(context.Background(), "ai-stack", "closed", "open")
	cleanup() // drains the buffer

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogWritesServiceEvent(t *testing.T) {
	db, mock, dbCleanup := setupEventTestDB(t)
	defer dbCleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `service_events`").
		WithArgs("browser-vm", "online", "offline", model.EventServiceOffline, "connection refused", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	l, cleanup := NewEventLog(db, log.DefaultLogger)
	l.RecordServiceEvent(context.Background(), "browser-vm", "online", "offline", "connection refused")
	cleanup()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogRetriesTransientFailure(t *testing.T) {
	db, mock, dbCleanup := setupEventTestDB(t)
	defer dbCleanup()

	// First attempt deadlocks, second succeeds.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `breaker_events`").
		WithArgs("redis-vm", "open", "half_open", model.EventBreakerHalfOpen, sqlmock.AnyArg()).
		WillReturnError(&sqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `breaker_events`").
		WithArgs("redis-vm", "open", "half_open", model.EventBreakerHalfOpen, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	l, cleanup := NewEventLog(db, log.DefaultLogger)
	l.RecordBreakerEvent(context.Background(), "redis-vm", "open", "half_open")
	cleanup()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogNilDBIsNoop(t *testing.T) {
	l, cleanup := NewEventLog(nil, log.DefaultLogger)
	defer cleanup()

	// Must not panic or block.
	l.RecordBreakerEvent(context.Background(), "svc", "closed", "open")
	l.RecordServiceEvent(context.Background(), "svc", "unknown", "online", "")

	n, err := l.PurgeOlderThan(context.Background(), 24*time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventLogPurge(t *testing.T) {
	db, mock, dbCleanup := setupEventTestDB(t)
	defer dbCleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `breaker_events`").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `service_events`").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	l, cleanup := NewEventLog(db, log.DefaultLogger)
	defer cleanup()

	n, err := l.PurgeOlderThan(context.Background(), 14*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakerEventTypeMapping(t *testing.T) {
	assert.Equal(t, model.EventBreakerOpened, breakerEventType("open"))
	assert.Equal(t, model.EventBreakerHalfOpen, breakerEventType("half_open"))
	assert.Equal(t, model.EventBreakerClosed, breakerEventType("closed"))

	assert.Equal(t, model.EventServiceOnline, serviceEventType("online"))
	assert.Equal(t, model.EventServiceDegraded, serviceEventType("degraded"))
	assert.Equal(t, model.EventServiceIntentionallyOffline, serviceEventType("intentionally_offline"))
	assert.Equal(t, model.EventServiceUnknown, serviceEventType("unknown"))
}
