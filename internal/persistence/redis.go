package persistence

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scenegraph/sgeval/internal/evaluation"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// HistoryPoint is one stored value of a metric.
type HistoryPoint struct {
	RunID     string
	Timestamp time.Time
	Value     float64
}

// RedisSink keeps a per-metric history across runs. Each metric key is a
// sorted set scored by report time with "<run id>|<value>" members.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSink connects to url and verifies the connection.
func NewRedisSink(url, prefix string, ttl time.Duration) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.ConfigurationError(fmt.Sprintf("parsing redis URL: %v", err))
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.PersistenceError("connecting to redis", err)
	}

	if prefix == "" {
		prefix = "sgeval:metrics:"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}, nil
}

// Write appends every defined metric of the report. Undefined (NaN) metrics
// are not stored.
func (s *RedisSink) Write(ctx context.Context, report *evaluation.Report) error {
	at := report.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	score := float64(at.Unix())

	pipe := s.client.Pipeline()
	for _, key := range report.Keys() {
		v := report.Metrics[key]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		redisKey := s.key(report.Dataset, key)
		pipe.ZAdd(ctx, redisKey, redis.Z{
			Score:  score,
			Member: report.RunID + "|" + strconv.FormatFloat(v, 'g', -1, 64),
		})
		if s.ttl > 0 {
			minScore := at.Add(-s.ttl).Unix()
			pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", minScore))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.PersistenceError("saving metrics to redis", err)
	}
	return nil
}

// LoadHistory returns the stored values of one metric since the given time,
// oldest first.
func (s *RedisSink) LoadHistory(ctx context.Context, dataset, metric string, since time.Time) ([]HistoryPoint, error) {
	results, err := s.client.ZRangeByScoreWithScores(ctx, s.key(dataset, metric), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, apperrors.PersistenceError("loading metric history", err)
	}

	points := make([]HistoryPoint, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		runID, raw, found := strings.Cut(member, "|")
		if !found {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		points = append(points, HistoryPoint{
			RunID:     runID,
			Timestamp: time.Unix(int64(z.Score), 0),
			Value:     value,
		})
	}
	return points, nil
}

// DeleteMetric drops the history of one metric.
func (s *RedisSink) DeleteMetric(ctx context.Context, dataset, metric string) error {
	if err := s.client.Del(ctx, s.key(dataset, metric)).Err(); err != nil {
		return apperrors.PersistenceError("deleting metric", err)
	}
	return nil
}

func (s *RedisSink) key(dataset, metric string) string {
	return s.prefix + dataset + ":" + metric
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
