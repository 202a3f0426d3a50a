package jobs

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker owns the asynq server that executes purge tasks and the scheduler
// that enqueues them on the configured cron spec.
type Worker struct {
	srv   *asynq.Server
	sched *asynq.Scheduler
	mux   *asynq.ServeMux
	log   *slog.Logger
}

// NewWorker registers the all-tenant purge on cronSpec (standard five-field
// cron or asynq's "@every 24h" form).
func NewWorker(redisOpt asynq.RedisClientOpt, cronSpec string, h *Handlers, log *slog.Logger) (*Worker, error) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePurgeTickets, h.HandlePurge)

	sched := asynq.NewScheduler(redisOpt, nil)
	task, err := NewPurgeTask("")
	if err != nil {
		return nil, err
	}
	id, err := sched.Register(cronSpec, task)
	if err != nil {
		return nil, fmt.Errorf("register purge schedule %q: %w", cronSpec, err)
	}
	log.Info("purge scheduled", "cron", cronSpec, "entry_id", id)
	return &Worker{srv: srv, sched: sched, mux: mux, log: log}, nil
}

// Start runs the server and the scheduler in the background.
func (w *Worker) Start() error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("asynq server: %w", err)
	}
	if err := w.sched.Start(); err != nil {
		w.srv.Shutdown()
		return fmt.Errorf("asynq scheduler: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.sched.Shutdown()
	w.srv.Shutdown()
	w.log.Info("purge worker stopped")
}
