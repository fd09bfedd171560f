package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/afkagent/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queueSize = 1024
	batchSize = 100
)

// Event is one journal entry to be persisted.
type Event struct {
	SessionID string
	Level     string
	Message   string
	Detail    string
	Fields    map[string]interface{}
	At        time.Time
}

// Service writes journal events and session records asynchronously.
// Events are batched; session upserts are applied in arrival order.
type Service struct {
	db     *gorm.DB
	ch     chan interface{}
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan interface{}, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// LogEvent enqueues a journal entry for async DB write.
func (svc *Service) LogEvent(e Event) {
	var fields datatypes.JSON
	if len(e.Fields) > 0 {
		raw, err := json.Marshal(e.Fields)
		if err == nil {
			fields = datatypes.JSON(raw)
		}
	}
	row := &model.EventLog{
		SessionID: e.SessionID,
		Level:     e.Level,
		Message:   e.Message,
		Detail:    e.Detail,
		Fields:    fields,
		CreatedAt: e.At,
	}
	svc.enqueue(row, e.Level)
}

// SaveSession enqueues an insert-or-update of a session record.
func (svc *Service) SaveSession(rec model.SessionRecord) {
	svc.enqueue(&rec, "session")
}

func (svc *Service) enqueue(item interface{}, kind string) {
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- item:
	default:
		svc.logger.Warn("audit channel full, dropping entry", zap.String("kind", kind))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.EventLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	handle := func(item interface{}) {
		switch v := item.(type) {
		case *model.EventLog:
			batch = append(batch, v)
			if len(batch) >= batchSize {
				flush()
			}
		case *model.SessionRecord:
			// Events queued before the record keep their order.
			flush()
			err := svc.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error
			if err != nil {
				svc.logger.Error("session record write failed", zap.String("id", v.ID), zap.Error(err))
			}
		}
	}

	for {
		select {
		case item := <-svc.ch:
			handle(item)
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case item := <-svc.ch:
					handle(item)
				default:
					flush()
					return
				}
			}
		}
	}
}
