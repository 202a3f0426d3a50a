package numbering

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/ticket"
)

// incrExisting increments only counters that already exist; -1 means the
// key still has to be seeded.
var incrExisting = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return -1
end
return redis.call('INCR', KEYS[1])
`)

// seedAndIncr sets the counter to the stored maximum unless another process
// got there first, then increments.
var seedAndIncr = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    redis.call('SET', KEYS[1], ARGV[1])
end
return redis.call('INCR', KEYS[1])
`)

// Redis allocates sequences with INCR on seq:{tenant}:{type}.
type Redis struct {
	rdb    *redis.Client
	finder LastTicketFinder
	prefix string
}

func NewRedis(rdb *redis.Client, f LastTicketFinder, prefix string) *Redis {
	if prefix == "" {
		prefix = "seq"
	}
	return &Redis{rdb: rdb, finder: f, prefix: prefix}
}

func (r *Redis) redisKey(tenantID string, typ model.TicketType) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, tenantID, typ)
}

// Allocate reserves a sequence atomically and then persists outside any
// lock. A failed persist leaves a gap, which numbering tolerates.
func (r *Redis) Allocate(ctx context.Context, tenantID string, typ model.TicketType, persist func(seq int) error) error {
	if !typ.Valid() {
		return ticket.ErrInvalidType
	}
	k := r.redisKey(tenantID, typ)
	n, err := incrExisting.Run(ctx, r.rdb, []string{k}).Int64()
	if err != nil {
		return fmt.Errorf("numbering: incr %s: %w", k, err)
	}
	if n < 0 {
		seed, err := lastSequence(ctx, r.finder, tenantID, typ)
		if err != nil {
			return err
		}
		n, err = seedAndIncr.Run(ctx, r.rdb, []string{k}, seed).Int64()
		if err != nil {
			return fmt.Errorf("numbering: seed %s: %w", k, err)
		}
	}
	return persist(int(n))
}

// Reset drops the tenant's counters so the next allocation reseeds from the
// (now empty) store.
func (r *Redis) Reset(ctx context.Context, tenantID string) error {
	keys := make([]string, 0, len(model.TicketTypes))
	for _, t := range model.TicketTypes {
		keys = append(keys, r.redisKey(tenantID, t))
	}
	return r.rdb.Del(ctx, keys...).Err()
}
