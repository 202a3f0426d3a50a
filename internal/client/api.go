package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/senhas/internal/model"
)

// IdempotencyKeyHeader must match the server's header name.
const IdempotencyKeyHeader = "Idempotency-Key"

type AuthResult struct {
	Token   string       `json:"token"`
	Expires time.Time    `json:"expires"`
	User    model.Tenant `json:"user"`
}

type Connection struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type Duration struct {
	Count          int     `json:"count"`
	AverageSeconds float64 `json:"average_seconds"`
	MinSeconds     float64 `json:"min_seconds"`
	MaxSeconds     float64 `json:"max_seconds"`
}

type Stats struct {
	Total        int                      `json:"total"`
	Today        int                      `json:"today"`
	Waiting      int                      `json:"waiting"`
	Called       int                      `json:"called"`
	Finished     int                      `json:"finished"`
	Expired      int                      `json:"expired"`
	ByType       map[model.TicketType]int `json:"by_type"`
	Wait         Duration                 `json:"wait"`
	Service      Duration                 `json:"service"`
	TotalServed  int64                    `json:"total_served"`
	LastServedAt *time.Time               `json:"last_served_at"`
}

type PurgeResult struct {
	Deleted     int64 `json:"deleted"`
	TenantReset bool  `json:"tenant_reset"`
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, email, password, companyName string) (AuthResult, error) {
	var out AuthResult
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/register", body: map[string]string{
		"email": email, "password": password, "company_name": companyName,
	}}, &out)
	if err == nil {
		c.SetToken(out.Token)
	}
	return out, err
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/login", body: map[string]string{
		"email": email, "password": password,
	}}, &out)
	if err == nil {
		c.SetToken(out.Token)
	}
	return out, err
}

func (c *Client) Me(ctx context.Context) (model.Tenant, error) {
	var out model.Tenant
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/me"}, &out)
	return out, err
}

func (c *Client) CheckConnection(ctx context.Context) (Connection, error) {
	var out Connection
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/check-connection"}, &out)
	return out, err
}

// ListTickets returns the tenant's tickets in statuses (all when none given).
func (c *Client) ListTickets(ctx context.Context, statuses ...model.Status) ([]model.Ticket, error) {
	path := "/v1/tickets"
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		path += "?status=" + strings.Join(names, ",")
	}
	var out []model.Ticket
	_, err := c.do(ctx, request{method: http.MethodGet, path: path}, &out)
	return out, err
}

// GenerateTicket issues one ticket. Every attempt of this call carries the
// same idempotency key, so a retried request never issues a second ticket.
func (c *Client) GenerateTicket(ctx context.Context, typ model.TicketType) (model.Ticket, error) {
	var out model.Ticket
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v1/tickets",
		body:    map[string]string{"type": string(typ)},
		headers: map[string]string{IdempotencyKeyHeader: uuid.NewString()},
	}, &out)
	return out, err
}

func (c *Client) GetTicket(ctx context.Context, id string) (model.Ticket, error) {
	var out model.Ticket
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/tickets/" + escape(id)}, &out)
	return out, err
}

// UpdateTicket moves a ticket to status; counter is required for CALLED.
func (c *Client) UpdateTicket(ctx context.Context, id string, status model.Status, counter string) (model.Ticket, error) {
	body := map[string]string{"status": string(status)}
	if counter != "" {
		body["counter"] = counter
	}
	var out model.Ticket
	_, err := c.do(ctx, request{method: http.MethodPut, path: "/v1/tickets/" + escape(id), body: body}, &out)
	return out, err
}

// CallNext calls the next ticket at counter. It reports false when the
// queue is empty.
func (c *Client) CallNext(ctx context.Context, typ model.TicketType, counter string) (model.Ticket, bool, error) {
	body := map[string]string{"counter": counter}
	if typ != "" {
		body["type"] = string(typ)
	}
	var out model.Ticket
	status, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/tickets/call-next", body: body}, &out)
	if err != nil {
		return model.Ticket{}, false, err
	}
	return out, status != http.StatusNoContent, nil
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/stats"}, &out)
	return out, err
}

// Purge deletes every ticket of the authenticated tenant.
func (c *Client) Purge(ctx context.Context) (PurgeResult, error) {
	var out PurgeResult
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/purge"}, &out)
	return out, err
}
