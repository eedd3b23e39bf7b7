package scheduler

import (
	"context"
	"fmt"
	"time"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/scoring"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// sendGuardTTL bounds how long a delivery claim on a message is held.
// Guards are released on failure so retries are not blocked.
const sendGuardTTL = 24 * time.Hour

// MessageDeliverer delivers one scheduled message end to end.
type MessageDeliverer interface {
	Deliver(ctx context.Context, messageID uuid.UUID) error
}

// StaleRescorer refreshes scores for leads whose inputs have drifted.
type StaleRescorer interface {
	RescoreStale(ctx context.Context, limit int) (scoring.BulkOutcome, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	guard     *redis.Client
	deliverer MessageDeliverer
	rescorer  StaleRescorer
	bus       events.Bus
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deliverer MessageDeliverer, rescorer StaleRescorer, bus events.Bus, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		guard: redis.NewClient(&redis.Options{
			Addr:      opt.Addr,
			Password:  opt.Password,
			DB:        opt.DB,
			TLSConfig: opt.TLSConfig,
		}),
		deliverer: deliverer,
		rescorer:  rescorer,
		bus:       bus,
		log:       log,
	}

	w.mux.HandleFunc(TaskNurtureMessageDue, w.handleNurtureMessageDue)
	w.mux.HandleFunc(TaskStaleScoreSweep, w.handleStaleScoreSweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) Close() error {
	if w == nil || w.guard == nil {
		return nil
	}
	return w.guard.Close()
}

func (w *Worker) handleNurtureMessageDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNurtureMessageDuePayload(task)
	if err != nil {
		return err
	}

	messageID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	acquired, err := w.acquireSendGuard(ctx, messageID)
	if err != nil {
		return err
	}
	if !acquired {
		w.log.Info("message already claimed by another worker", "message_id", messageID)
		return nil
	}

	if w.bus != nil {
		w.bus.Publish(ctx, events.ScheduledMessageDue{
			BaseEvent: events.NewBaseEvent(),
			MessageID: messageID,
			LeadID:    leadID,
		})
	}

	if err := w.deliverer.Deliver(ctx, messageID); err != nil {
		w.releaseSendGuard(ctx, messageID)
		return err
	}
	return nil
}

func (w *Worker) handleStaleScoreSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseStaleScoreSweepPayload(task)
	if err != nil {
		return err
	}
	if payload.Limit < 1 {
		payload.Limit = sweepLimit
	}

	outcome, err := w.rescorer.RescoreStale(ctx, payload.Limit)
	if err != nil {
		return err
	}

	w.log.Info("stale score sweep finished",
		"scored", outcome.Scored, "cached", outcome.Cached, "failed", outcome.Failed)
	return nil
}

func sendGuardKey(messageID uuid.UUID) string {
	return "nurture:send:" + messageID.String()
}

// acquireSendGuard takes a short-lived exclusive claim on a message so a
// redelivered asynq task cannot double-send it.
func (w *Worker) acquireSendGuard(ctx context.Context, messageID uuid.UUID) (bool, error) {
	if w.guard == nil {
		return true, nil
	}
	return w.guard.SetNX(ctx, sendGuardKey(messageID), "1", sendGuardTTL).Result()
}

func (w *Worker) releaseSendGuard(ctx context.Context, messageID uuid.UUID) {
	if w.guard == nil {
		return
	}
	if err := w.guard.Del(ctx, sendGuardKey(messageID)).Err(); err != nil {
		w.log.Warn("release send guard failed", "message_id", messageID, "error", err)
	}
}
