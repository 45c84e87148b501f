package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fabric-fusion-backend/internal/logger"
)

const (
	defaultStream = "fusion_jobs"
	defaultGroup  = "fusion_workers"
	readBlock     = 5 * time.Second
)

// StreamsConfig selects the Redis server and stream. Empty names get
// defaults; the dead-letter stream is always "<Stream>_dlq".
type StreamsConfig struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string
}

func (c StreamsConfig) withDefaults() StreamsConfig {
	if c.Stream == "" {
		c.Stream = defaultStream
	}
	if c.Group == "" {
		c.Group = defaultGroup
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		c.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return c
}

// StreamsQueue delivers fusion jobs through a Redis stream. All workers share
// one consumer group, so a job reaches exactly one of them. Handled entries
// are acked and deleted; failed ones are copied to the dead-letter stream
// first.
type StreamsQueue struct {
	rdb *redis.Client
	cfg StreamsConfig
	log *logger.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig, log *logger.Logger) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password})
	q := &StreamsQueue{
		rdb: rdb,
		cfg: cfg,
		log: log.With("service", "StreamsQueue", "stream", cfg.Stream, "consumer", cfg.Consumer),
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if err := q.createGroup(ctx); err != nil {
		rdb.Close()
		return nil, err
	}
	return q, nil
}

func (q *StreamsQueue) Close() error {
	return q.rdb.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message Message) error {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: encodeMessage(message),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", message.JobID, err)
	}
	return nil
}

// Consume blocks until ctx ends or Redis fails. Entries are handled one at a
// time.
func (q *StreamsQueue) Consume(ctx context.Context, handler Handler) error {
	for ctx.Err() == nil {
		res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("read stream %s: %w", q.cfg.Stream, err)
		}

		for _, s := range res {
			for _, entry := range s.Messages {
				q.handle(ctx, entry, handler)
			}
		}
	}
	return ctx.Err()
}

func (q *StreamsQueue) handle(ctx context.Context, entry redis.XMessage, handler Handler) {
	message, err := parseStreamMessage(entry)
	if err == nil {
		err = handler(ctx, message)
	}
	if err != nil {
		q.log.Warn("Job message dead-lettered", "entry_id", entry.ID, "job_id", message.JobID, "error", err)
	}
	// settle outlives a cancelled ctx so the entry is not left pending
	if serr := q.settle(context.WithoutCancel(ctx), entry.ID, message.JobID, err); serr != nil {
		q.log.Error("Failed to settle stream entry", "entry_id", entry.ID, "error", serr)
	}
}

// settle removes a handled entry from the stream in one round trip, copying it
// to the dead-letter stream when cause is set.
func (q *StreamsQueue) settle(ctx context.Context, entryID, jobID string, cause error) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if cause != nil {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: q.cfg.Stream + "_dlq",
				Values: map[string]interface{}{
					"entry_id": entryID,
					"job_id":   jobID,
					"error":    cause.Error(),
					"moved_at": time.Now().UTC().Format(time.RFC3339Nano),
				},
			})
		}
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
		pipe.XDel(ctx, q.cfg.Stream, entryID)
		return nil
	})
	return err
}

func (q *StreamsQueue) createGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.cfg.Group, err)
	}
	return nil
}

func encodeMessage(message Message) map[string]interface{} {
	return map[string]interface{}{
		"job_id":       message.JobID,
		"requested_at": message.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(entry redis.XMessage) (Message, error) {
	var message Message
	for _, key := range []string{"job_id", "requested_at"} {
		if _, ok := entry.Values[key]; !ok {
			return message, fmt.Errorf("entry %s: missing %s", entry.ID, key)
		}
	}

	message.JobID = fmt.Sprint(entry.Values["job_id"])
	if message.JobID == "" {
		return message, fmt.Errorf("entry %s: empty job_id", entry.ID)
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, fmt.Sprint(entry.Values["requested_at"]))
	if err != nil {
		return message, fmt.Errorf("entry %s: requested_at: %w", entry.ID, err)
	}
	message.RequestedAt = requestedAt
	return message, nil
}
