// Command painel is a terminal display panel: it polls a tenant's queue,
// keeps the last good snapshot when the server is unreachable and logs the
// ticket currently being called.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/senhas/internal/client"
	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/queuecache"
	"github.com/iliyamo/senhas/internal/ticket"
)

type options struct {
	baseURL       string
	email         string
	password      string
	token         string
	interval      time.Duration
	probeInterval time.Duration
	timeout       time.Duration
	perTicket     time.Duration
}

func main() {
	var o options
	pflag.StringVar(&o.baseURL, "url", envOr("SENHAS_URL", "http://localhost:8080"), "API base URL")
	pflag.StringVar(&o.email, "email", os.Getenv("SENHAS_EMAIL"), "account email")
	pflag.StringVar(&o.password, "password", os.Getenv("SENHAS_PASSWORD"), "account password")
	pflag.StringVar(&o.token, "token", os.Getenv("SENHAS_TOKEN"), "access token (skips login)")
	pflag.DurationVar(&o.interval, "interval", 3*time.Second, "queue poll interval")
	pflag.DurationVar(&o.probeInterval, "probe-interval", 30*time.Second, "connectivity check interval")
	pflag.DurationVar(&o.timeout, "timeout", 5*time.Second, "per-request timeout")
	pflag.DurationVar(&o.perTicket, "per-ticket", ticket.DefaultPerTicket, "estimated service time per ticket")
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("painel stopped", "err", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, o options, log *slog.Logger) error {
	api := client.New(o.baseURL, client.WithTimeout(o.timeout), client.WithToken(o.token), client.WithLogger(log))
	if o.token == "" {
		if o.email == "" || o.password == "" {
			return errors.New("--token or --email/--password required")
		}
		if _, err := api.Login(ctx, o.email, o.password); err != nil {
			return err
		}
	}
	me, err := api.Me(ctx)
	if err != nil {
		return err
	}
	log.Info("panel started", "company", me.CompanyName, "interval", o.interval)

	p := &panel{api: api, cache: queuecache.New(me.ID, o.perTicket), log: log, opts: o}
	p.poll(ctx)
	p.probe(ctx)

	pollTick := time.NewTicker(o.interval)
	defer pollTick.Stop()
	probeTick := time.NewTicker(o.probeInterval)
	defer probeTick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTick.C:
			p.poll(ctx)
		case <-probeTick.C:
			p.probe(ctx)
		}
	}
}

type panel struct {
	api   *client.Client
	cache *queuecache.Cache
	log   *slog.Logger
	opts  options

	shown string
}

func (p *panel) poll(ctx context.Context) {
	polled, err := p.api.ListTickets(ctx, model.StatusWaiting, model.StatusCalled, model.StatusFinished)
	if err != nil {
		p.cache.MarkFailed(err)
		_, since, _ := p.cache.Stale()
		p.log.Warn("poll failed, showing last snapshot", "err", err, "since", since,
			"waiting", len(p.cache.ByStatus(model.StatusWaiting)))
		if client.StatusOf(err) == http.StatusUnauthorized && p.opts.email != "" {
			if _, err := p.api.Login(ctx, p.opts.email, p.opts.password); err != nil {
				p.log.Warn("re-login failed", "err", err)
			}
		}
		return
	}
	// The server only ever drops tickets on purge.
	if len(polled) == 0 && len(p.cache.Snapshot()) > 0 {
		p.log.Info("queue purged")
		p.cache.Reset()
		p.shown = ""
	}
	p.cache.Merge(polled, time.Now())

	waiting := len(p.cache.ByStatus(model.StatusWaiting))
	cur, ok := p.cache.Current()
	if !ok || cur.ID == p.shown {
		p.log.Debug("queue polled", "waiting", waiting)
		return
	}
	p.shown = cur.ID
	counter := ""
	if cur.Counter != nil {
		counter = *cur.Counter
	}
	p.log.Info("now calling", "number", ticket.Label(cur), "counter", counter, "waiting", waiting)
	if next, ok := p.cache.Next(""); ok {
		p.log.Info("next up", "number", ticket.Label(next))
	}
}

func (p *panel) probe(ctx context.Context) {
	conn, err := p.api.CheckConnection(ctx)
	if err != nil {
		p.log.Warn("server unreachable", "err", err)
		return
	}
	if conn.Database != "connected" {
		p.log.Warn("server reachable, database unavailable", "database", conn.Database)
		return
	}
	p.log.Debug("connection ok")
}
