package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openwager/betpool/internal/domain"
)

const betTTL = 30 * time.Second

// cachedBet is the JSON shape stored in Redis. Amounts are decimal strings
// so arbitrarily large values survive the round trip.
type cachedBet struct {
	ID             int64     `json:"id"`
	Creator        string    `json:"creator"`
	Resolver       string    `json:"resolver"`
	Question       string    `json:"question"`
	Deadline       time.Time `json:"deadline"`
	YesTotal       string    `json:"yes_total"`
	NoTotal        string    `json:"no_total"`
	Resolved       bool      `json:"resolved"`
	Outcome        string    `json:"outcome"`
	RefundsStarted bool      `json:"refunds_started"`
	CreatedAt      time.Time `json:"created_at"`
}

// BetCache implements domain.BetCache using Redis string keys with JSON
// payloads and a short TTL. Only the discovery read path consults it.
//
// Key schema:
//
//	bet:{id} - JSON-serialized bet record
type BetCache struct {
	rdb *redis.Client
}

// NewBetCache creates a BetCache backed by the given Client.
func NewBetCache(c *Client) *BetCache {
	return &BetCache{rdb: c.Underlying()}
}

func betKey(id int64) string { return "bet:" + strconv.FormatInt(id, 10) }

// Set stores a bet with a short TTL.
func (bc *BetCache) Set(ctx context.Context, b domain.Bet) error {
	data, err := json.Marshal(cachedBet{
		ID:             b.ID,
		Creator:        b.Creator,
		Resolver:       b.Resolver,
		Question:       b.Question,
		Deadline:       b.Deadline,
		YesTotal:       b.YesTotal.String(),
		NoTotal:        b.NoTotal.String(),
		Resolved:       b.Resolved,
		Outcome:        string(b.Outcome),
		RefundsStarted: b.RefundsStarted,
		CreatedAt:      b.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal bet %d: %w", b.ID, err)
	}

	if err := bc.rdb.Set(ctx, betKey(b.ID), data, betTTL).Err(); err != nil {
		return fmt.Errorf("redis: set bet %d: %w", b.ID, err)
	}
	return nil
}

// Get retrieves a bet by id. It returns domain.ErrNotFound when the key does
// not exist.
func (bc *BetCache) Get(ctx context.Context, id int64) (domain.Bet, error) {
	data, err := bc.rdb.Get(ctx, betKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("redis: get bet %d: %w", id, err)
	}

	var cb cachedBet
	if err := json.Unmarshal(data, &cb); err != nil {
		return domain.Bet{}, fmt.Errorf("redis: unmarshal bet %d: %w", id, err)
	}

	yes, ok := new(big.Int).SetString(cb.YesTotal, 10)
	if !ok {
		return domain.Bet{}, fmt.Errorf("redis: bet %d: bad yes total %q", id, cb.YesTotal)
	}
	no, ok := new(big.Int).SetString(cb.NoTotal, 10)
	if !ok {
		return domain.Bet{}, fmt.Errorf("redis: bet %d: bad no total %q", id, cb.NoTotal)
	}

	return domain.Bet{
		ID:             cb.ID,
		Creator:        cb.Creator,
		Resolver:       cb.Resolver,
		Question:       cb.Question,
		Deadline:       cb.Deadline,
		YesTotal:       yes,
		NoTotal:        no,
		Resolved:       cb.Resolved,
		Outcome:        domain.Side(cb.Outcome),
		RefundsStarted: cb.RefundsStarted,
		CreatedAt:      cb.CreatedAt,
	}, nil
}

// Invalidate removes a bet from the cache.
func (bc *BetCache) Invalidate(ctx context.Context, id int64) error {
	if err := bc.rdb.Del(ctx, betKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate bet %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BetCache = (*BetCache)(nil)
