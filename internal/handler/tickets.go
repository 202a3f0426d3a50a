package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/middleware"
	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/service"
	"github.com/iliyamo/senhas/internal/ticket"
)

// IdempotencyKeyHeader carries the client's request id for ticket creation.
const IdempotencyKeyHeader = "Idempotency-Key"

// TicketHandler serves the tenant-scoped ticket endpoints.
type TicketHandler struct {
	Tickets  *service.TicketService
	Log      *slog.Logger
	Timeout  time.Duration
	Location *time.Location // interprets date-only stats bounds
}

func NewTicketHandler(tickets *service.TicketService, log *slog.Logger, timeout time.Duration, loc *time.Location) *TicketHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TicketHandler{Tickets: tickets, Log: log, Timeout: timeout, Location: loc}
}

// counterValue accepts the service point as a JSON string or number.
type counterValue string

func (v *counterValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = counterValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = counterValue(n.String())
	return nil
}

type createReq struct {
	Type string `json:"type"`
}
type updateReq struct {
	Status  string       `json:"status"`
	Counter counterValue `json:"counter"`
}
type callNextReq struct {
	Type    string       `json:"type"`
	Counter counterValue `json:"counter"`
}

// Create issues a ticket. A repeated Idempotency-Key answers 200 with the
// ticket issued the first time.
func (h *TicketHandler) Create(c echo.Context) error {
	var req createReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	typ, ok := model.ParseTicketType(req.Type)
	if !ok {
		return writeError(c, h.Log, ticket.ErrInvalidType)
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	t, created, err := h.Tickets.Generate(ctx, middleware.TenantID(c), typ, c.Request().Header.Get(IdempotencyKeyHeader))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !created {
		return c.JSON(http.StatusOK, t)
	}
	return c.JSON(http.StatusCreated, t)
}

// List returns the tenant's tickets, optionally filtered by ?status=A,B.
func (h *TicketHandler) List(c echo.Context) error {
	var statuses []model.Status
	for _, raw := range strings.Split(c.QueryParam("status"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		st, ok := model.ParseStatus(raw)
		if !ok {
			return writeError(c, h.Log, ticket.ErrInvalidStatus)
		}
		statuses = append(statuses, st)
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	list, err := h.Tickets.List(ctx, middleware.TenantID(c), statuses)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *TicketHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	t, err := h.Tickets.Get(ctx, middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

type positionResp struct {
	Ticket               model.Ticket `json:"ticket"`
	Waiting              bool         `json:"waiting"`
	Place                int          `json:"place,omitempty"`
	Ahead                *int         `json:"ahead,omitempty"`
	EstimatedWaitSeconds *int64       `json:"estimated_wait_seconds,omitempty"`
}

// Position reports where a waiting ticket stands in line.
func (h *TicketHandler) Position(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	t, pos, waiting, err := h.Tickets.Position(ctx, middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	resp := positionResp{Ticket: t, Waiting: waiting}
	if waiting {
		secs := int64(pos.EstimatedWait / time.Second)
		resp.Place, resp.Ahead, resp.EstimatedWaitSeconds = pos.Place, &pos.Ahead, &secs
	}
	return c.JSON(http.StatusOK, resp)
}

// Update moves a ticket to CALLED or FINISHED.
func (h *TicketHandler) Update(c echo.Context) error {
	var req updateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	st, ok := model.ParseStatus(req.Status)
	if !ok {
		return writeError(c, h.Log, ticket.ErrInvalidStatus)
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	t, err := h.Tickets.Update(ctx, middleware.TenantID(c), c.Param("id"), st, string(req.Counter))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// CallNext calls the next ticket at the given counter; 204 when the queue
// is empty.
func (h *TicketHandler) CallNext(c echo.Context) error {
	var req callNextReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	var typ model.TicketType
	if strings.TrimSpace(req.Type) != "" {
		var ok bool
		if typ, ok = model.ParseTicketType(req.Type); !ok {
			return writeError(c, h.Log, ticket.ErrInvalidType)
		}
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	t, ok, err := h.Tickets.CallNext(ctx, middleware.TenantID(c), typ, string(req.Counter))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, t)
}

type durationResp struct {
	Count          int     `json:"count"`
	AverageSeconds float64 `json:"average_seconds"`
	MinSeconds     float64 `json:"min_seconds"`
	MaxSeconds     float64 `json:"max_seconds"`
}

func toDurationResp(d ticket.DurationStats) durationResp {
	return durationResp{
		Count:          d.Count,
		AverageSeconds: d.Average.Seconds(),
		MinSeconds:     d.Min.Seconds(),
		MaxSeconds:     d.Max.Seconds(),
	}
}

type statsResp struct {
	Total        int                      `json:"total"`
	Today        int                      `json:"today"`
	Waiting      int                      `json:"waiting"`
	Called       int                      `json:"called"`
	Finished     int                      `json:"finished"`
	Expired      int                      `json:"expired"`
	ByType       map[model.TicketType]int `json:"by_type"`
	Wait         durationResp             `json:"wait"`
	Service      durationResp             `json:"service"`
	TotalServed  int64                    `json:"total_served"`
	LastServedAt *time.Time               `json:"last_served_at"`
}

// Stats summarizes the tenant's tickets, optionally within ?from=&to=.
func (h *TicketHandler) Stats(c echo.Context) error {
	from, err := h.parseBound(c.QueryParam("from"), false)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from"})
	}
	to, err := h.parseBound(c.QueryParam("to"), true)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	st, err := h.Tickets.Stats(ctx, middleware.TenantID(c), from, to)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, statsResp{
		Total:        st.Total,
		Today:        st.Today,
		Waiting:      st.Waiting,
		Called:       st.Called,
		Finished:     st.Finished,
		Expired:      st.Expired,
		ByType:       st.ByType,
		Wait:         toDurationResp(st.Wait),
		Service:      toDurationResp(st.Service),
		TotalServed:  st.TotalServed,
		LastServedAt: st.LastServedAt,
	})
}

// parseBound accepts RFC3339 or YYYY-MM-DD. A date-only upper bound covers
// that whole day.
func (h *TicketHandler) parseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, h.Location)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}

// Purge deletes every ticket of the tenant and restarts numbering.
func (h *TicketHandler) Purge(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	res, err := h.Tickets.Purge(ctx, middleware.TenantID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"deleted":      res.Deleted,
		"tenant_reset": true,
	})
}
