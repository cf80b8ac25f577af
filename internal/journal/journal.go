// Package journal writes remediation actions to a Redis list so other
// services can consume them. The journal is write-only; the agent never
// reads it back.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/softcane/kube-remediator/internal/remediation"
)

// DefaultKey is the Redis list entries are pushed to.
const DefaultKey = "remediation:actions"

// Event kinds.
const (
	EventAction        = "action"
	EventFalsePositive = "false_positive"
)

// Entry is one journaled event.
type Entry struct {
	Event      string                   `json:"event"`
	Action     remediation.ActionRecord `json:"action"`
	RecordedAt time.Time                `json:"recorded_at"`
}

// Pusher is the subset of the Redis client the journal needs.
type Pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Options configures a Redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
	Key      string
	Logger   *slog.Logger
}

// RedisJournal pushes JSON entries onto a Redis list.
type RedisJournal struct {
	client Pusher
	closer func() error
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a journal on top of an existing client.
func New(client Pusher, key string, logger *slog.Logger) *RedisJournal {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisJournal{
		client: client,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*RedisJournal, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Address, err)
	}

	j := New(client, opts.Key, opts.Logger)
	j.closer = client.Close
	j.logger.Info("action journal connected", "address", opts.Address, "key", j.key)
	return j, nil
}

// RecordAction journals a newly recorded action.
func (j *RedisJournal) RecordAction(ctx context.Context, rec remediation.ActionRecord) error {
	return j.push(ctx, EventAction, rec)
}

// RecordFalsePositive journals a false-positive marking.
func (j *RedisJournal) RecordFalsePositive(ctx context.Context, rec remediation.ActionRecord) error {
	return j.push(ctx, EventFalsePositive, rec)
}

// Key returns the Redis list name.
func (j *RedisJournal) Key() string {
	return j.key
}

// Close releases the underlying connection when the journal owns it.
func (j *RedisJournal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer()
}

func (j *RedisJournal) push(ctx context.Context, event string, rec remediation.ActionRecord) error {
	payload, err := json.Marshal(Entry{Event: event, Action: rec, RecordedAt: j.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	if err := j.client.LPush(ctx, j.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to redis list %s: %w", j.key, err)
	}

	j.logger.Debug("journaled action", "event", event, "action_id", rec.ID, "key", j.key)
	return nil
}

var _ remediation.Journal = (*RedisJournal)(nil)
