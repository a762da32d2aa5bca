package data

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"github.com/mrveiss/autobot-sentinel/internal/model"
	dberrors "github.com/mrveiss/autobot-sentinel/pkg/errors"
)

// EventLog persists breaker and service transitions asynchronously through
// a buffered channel, so a slow or absent database never stalls a health
// check. With a nil DB every record is a no-op.
type EventLog struct {
	db     *gorm.DB
	events chan any
	stop   chan struct{}
	wg     sync.WaitGroup
	logger *log.Helper
}

// NewEventLog creates the async event writer. The returned cleanup drains
// the buffer and stops the background goroutine.
func NewEventLog(db *gorm.DB, logger log.Logger) (*EventLog, func()) {
	l := &EventLog{
		db:     db,
		events: make(chan any, 1024), // buffered to prevent blocking callers
		stop:   make(chan struct{}),
		logger: log.NewHelper(logger),
	}

	if db != nil {
		l.wg.Add(1)
		go l.run()
	}

	cleanup := func() {
		close(l.stop)
		l.wg.Wait()
	}
	return l, cleanup
}

func (l *EventLog) run() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.events:
			l.write(ev)
		case <-l.stop:
			// Drain what is already queued before exiting.
			for {
				select {
				case ev := <-l.events:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *EventLog) write(ev any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.db.WithContext(ctx).Create(ev).Error
	if err != nil && dberrors.IsTransient(err) {
		// One retry covers deadlocks and dropped connections; events are
		// history, not state, so anything worse is only logged.
		err = l.db.WithContext(ctx).Create(ev).Error
	}
	if err != nil {
		l.logger.Errorw("msg", "failed to write event", "error", dberrors.ClassifyDBError(err))
	}
}

func (l *EventLog) enqueue(ev any) {
	if l.db == nil {
		return
	}
	select {
	case <-l.stop:
	case l.events <- ev:
	default:
		l.logger.Warn("event buffer full, dropping event")
	}
}

// RecordBreakerEvent implements biz.EventRecorder.
func (l *EventLog) RecordBreakerEvent(_ context.Context, service, fromState, toState string) {
	l.enqueue(&model.BreakerEvent{
		Service:   service,
		FromState: fromState,
		ToState:   toState,
		EventType: breakerEventType(toState),
	})
}

// RecordServiceEvent implements biz.EventRecorder.
func (l *EventLog) RecordServiceEvent(_ context.Context, service, fromStatus, toStatus, reason string) {
	l.enqueue(&model.ServiceEvent{
		Service:    service,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		EventType:  serviceEventType(toStatus),
		Reason:     reason,
	})
}

func breakerEventType(toState string) string {
	switch toState {
	case "open":
		return model.EventBreakerOpened
	case "half_open":
		return model.EventBreakerHalfOpen
	default:
		return model.EventBreakerClosed
	}
}

func serviceEventType(toStatus string) string {
	switch toStatus {
	case "online":
		return model.EventServiceOnline
	case "offline":
		return model.EventServiceOffline
	case "degraded":
		return model.EventServiceDegraded
	case "intentionally_offline":
		return model.EventServiceIntentionallyOffline
	default:
		return model.EventServiceUnknown
	}
}

// PurgeOlderThan deletes event rows past the retention horizon. It returns
// the total number of rows removed from both tables.
func (l *EventLog) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if l.db == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)

	var total int64
	res := l.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.BreakerEvent{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	res = l.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.ServiceEvent{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected
	return total, nil
}
