// Package jobs runs scheduled maintenance on asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/senhas/internal/service"
)

// TypePurgeTickets empties the ticket queue of one tenant or of all of them.
const TypePurgeTickets = "tickets:purge"

// PurgePayload selects the tenant; an empty TenantID means every tenant.
type PurgePayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// Purger is the ticket service surface the purge job needs.
type Purger interface {
	Purge(ctx context.Context, tenantID string) (service.PurgeResult, error)
	PurgeAll(ctx context.Context) ([]service.PurgeResult, error)
}

func NewPurgeTask(tenantID string) (*asynq.Task, error) {
	b, err := json.Marshal(PurgePayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurgeTickets, b, asynq.MaxRetry(3)), nil
}

type Handlers struct {
	Purger Purger
	Log    *slog.Logger
}

// HandlePurge runs a purge task. Purging is idempotent, so asynq retries of
// a partly failed fan-out are safe.
func (h *Handlers) HandlePurge(ctx context.Context, t *asynq.Task) error {
	var p PurgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("purge payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.TenantID != "" {
		res, err := h.Purger.Purge(ctx, p.TenantID)
		if err != nil {
			return err
		}
		h.Log.Info("scheduled purge done", "tenant_id", p.TenantID, "deleted", res.Deleted)
		return nil
	}

	results, err := h.Purger.PurgeAll(ctx)
	var deleted int64
	for _, r := range results {
		deleted += r.Deleted
	}
	h.Log.Info("scheduled purge done", "tenants", len(results), "deleted", deleted)
	return err
}
