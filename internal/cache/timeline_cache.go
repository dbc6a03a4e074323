package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"medtrak/internal/model"
)

// TimelineCache keeps a patient's full record list in Redis. Writers mark the
// timeline dirty so a reader racing a write never repopulates stale data.
type TimelineCache struct {
	client         *redisv9.Client
	timelineTTL    time.Duration
	dirtyMarkerTTL time.Duration
}

func NewTimelineCache(client *redisv9.Client, timelineTTL, dirtyMarkerTTL time.Duration) *TimelineCache {
	if timelineTTL <= 0 {
		timelineTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &TimelineCache{
		client:         client,
		timelineTTL:    timelineTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *TimelineCache) GetTimeline(ctx context.Context, patientUID string) ([]model.Record, bool, error) {
	raw, err := c.client.Get(ctx, c.timelineKey(patientUID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get timeline failed: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached timeline failed: %w", err)
	}
	records := make([]model.Record, 0, len(items))
	for _, item := range items {
		record, err := model.UnmarshalRecord(item)
		if err != nil {
			return nil, false, fmt.Errorf("decode cached record failed: %w", err)
		}
		records = append(records, record)
	}
	return records, true, nil
}

func (c *TimelineCache) SetTimeline(ctx context.Context, patientUID string, records []model.Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal timeline cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.timelineKey(patientUID), payload, c.timelineTTL).Err(); err != nil {
		return fmt.Errorf("redis set timeline failed: %w", err)
	}
	return nil
}

func (c *TimelineCache) DeleteTimeline(ctx context.Context, patientUID string) error {
	if err := c.client.Del(ctx, c.timelineKey(patientUID)).Err(); err != nil {
		return fmt.Errorf("redis delete timeline failed: %w", err)
	}
	return nil
}

func (c *TimelineCache) MarkDirty(ctx context.Context, patientUID string) error {
	if err := c.client.Set(ctx, c.dirtyKey(patientUID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *TimelineCache) IsDirty(ctx context.Context, patientUID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(patientUID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *TimelineCache) timelineKey(patientUID string) string {
	return "records:timeline:" + patientUID
}

func (c *TimelineCache) dirtyKey(patientUID string) string {
	return "records:timeline:dirty:" + patientUID
}
