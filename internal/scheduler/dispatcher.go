package scheduler

import (
	"context"
	"fmt"
	"time"

	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	dispatchInterval = 2 * time.Second
	dispatchBatch    = 50

	sweepInterval = time.Hour
	sweepLimit    = 200
)

// MessageOutbox is the slice of the nurture repository the dispatcher
// needs: claim due messages and put failed handoffs back in line.
type MessageOutbox interface {
	ClaimDue(ctx context.Context, limit int) ([]repository.Message, error)
	RecordSendFailure(ctx context.Context, id uuid.UUID, sendErr string) error
}

// Dispatcher polls the scheduled-message outbox and hands due messages
// to asynq. The outbox row stays the source of truth: a message the
// dispatcher fails to enqueue goes back to pending and is claimed again
// on a later tick.
type Dispatcher struct {
	client *asynq.Client
	queue  string
	outbox MessageOutbox
	log    *logger.Logger
}

func NewDispatcher(cfg config.SchedulerConfig, outbox MessageOutbox, log *logger.Logger) (*Dispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Dispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		outbox: outbox,
		log:    log,
	}, nil
}

func (d *Dispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.outbox == nil {
		return
	}

	dispatch := time.NewTicker(dispatchInterval)
	defer dispatch.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	d.enqueueSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			d.enqueueSweep(ctx)
		case <-dispatch.C:
			d.dispatchDue(ctx)
		}
	}
}

func (d *Dispatcher) dispatchDue(ctx context.Context) {
	messages, err := d.outbox.ClaimDue(ctx, dispatchBatch)
	if err != nil {
		d.log.Warn("claim due messages failed", "error", err)
		return
	}

	for _, msg := range messages {
		task, err := NewNurtureMessageDueTask(NurtureMessageDuePayload{
			MessageID: msg.ID.String(),
			LeadID:    msg.LeadID.String(),
		})
		if err != nil {
			d.requeue(ctx, msg.ID, err)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task,
			asynq.ProcessAt(msg.SendAt),
			asynq.Queue(d.queue),
			asynq.MaxRetry(5),
		)
		if err != nil {
			d.requeue(ctx, msg.ID, err)
			continue
		}
	}
}

func (d *Dispatcher) requeue(ctx context.Context, id uuid.UUID, cause error) {
	d.log.Warn("message handoff failed", "message_id", id, "error", cause)
	if err := d.outbox.RecordSendFailure(ctx, id, cause.Error()); err != nil {
		d.log.Error("requeue message failed", "message_id", id, "error", err)
	}
}

func (d *Dispatcher) enqueueSweep(ctx context.Context) {
	task, err := NewStaleScoreSweepTask(StaleScoreSweepPayload{Limit: sweepLimit})
	if err != nil {
		d.log.Error("build stale score sweep task", "error", err)
		return
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue)); err != nil {
		d.log.Warn("enqueue stale score sweep failed", "error", err)
	}
}
