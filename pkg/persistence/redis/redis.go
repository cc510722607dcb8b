// Package redis provides Redis-backed persistence. Records are stored as
// JSON strings under chatflow:* keys with set/zset indexes for the list and
// due queries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatflow-io/chatflow/pkg/persistence"
)

const keyPrefix = "chatflow"

// Persistence implements persistence.Persistence on a Redis server.
type Persistence struct {
	client        goredis.UniversalClient
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	messageRepo   *MessageRepository
	scheduledRepo *ScheduledMessageRepository
}

// NewPersistence connects to the Redis server at the given URL
// (redis://host:port/db).
func NewPersistence(url string) (*Persistence, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	return &Persistence{
		client:        client,
		workflowRepo:  &WorkflowRepository{client: client},
		executionRepo: &ExecutionRepository{client: client},
		messageRepo:   &MessageRepository{client: client},
		scheduledRepo: &ScheduledMessageRepository{client: client},
	}, nil
}

func (rp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return rp.workflowRepo
}

func (rp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return rp.executionRepo
}

func (rp *Persistence) MessageRepository() persistence.MessageRepository {
	return rp.messageRepo
}

func (rp *Persistence) ScheduledMessageRepository() persistence.ScheduledMessageRepository {
	return rp.scheduledRepo
}

func (rp *Persistence) HealthCheck(ctx context.Context) error {
	return rp.client.Ping(ctx).Err()
}

func (rp *Persistence) Close(_ context.Context) error {
	return rp.client.Close()
}

func key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func setJSON(ctx context.Context, client goredis.UniversalClient, k string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k, err)
	}

	return client.Set(ctx, k, data, 0).Err()
}

// getJSON loads a record; found is false when the key is absent.
func getJSON(ctx context.Context, client goredis.UniversalClient, k string, record any) (bool, error) {
	data, err := client.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, record); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", k, err)
	}

	return true, nil
}
