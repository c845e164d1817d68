package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"qbank-server/exam"
	"qbank-server/models"
	"qbank-server/utils"
)

const (
	keyPrefix = "qbank:pool"
	epochKey  = keyPrefix + ":epoch"
)

// QuestionCache is a read-through Redis cache in front of a question source.
// Cached pools are keyed by an epoch that Invalidate bumps, so stale entries
// simply stop being read and expire on their own.
type QuestionCache struct {
	next   exam.QuestionSource
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	log.Println("Successfully connected to Redis!")
	return rdb, nil
}

// NewQuestionCache wraps next with the given client.
func NewQuestionCache(next exam.QuestionSource, client *redis.Client, ttl time.Duration) *QuestionCache {
	return &QuestionCache{next: next, client: client, ttl: ttl}
}

// QuestionsForSubjects serves the pool from Redis when present, otherwise loads
// it from the wrapped source and stores it. Redis failures never fail the call.
func (c *QuestionCache) QuestionsForSubjects(ctx context.Context, subjectIDs, chapterIDs []int) ([]models.Question, error) {
	epoch, err := c.client.Get(ctx, epochKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Question cache unavailable, reading from store: %v", err)
		return c.next.QuestionsForSubjects(ctx, subjectIDs, chapterIDs)
	}
	key := poolKey(epoch, subjectIDs, chapterIDs)

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var questions []models.Question
		if err := json.Unmarshal(cached, &questions); err == nil {
			return questions, nil
		}
		log.Printf("Discarding unreadable cache entry %s: %v", key, err)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("Error reading cache entry %s: %v", key, err)
	}

	questions, err := c.next.QuestionsForSubjects(ctx, subjectIDs, chapterIDs)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(questions)
	if err != nil {
		log.Printf("Error encoding question pool for cache: %v", err)
		return questions, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Printf("Error writing cache entry %s: %v", key, err)
	}
	return questions, nil
}

// Invalidate makes every cached pool stale, e.g. after an ingestion.
func (c *QuestionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, epochKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate question cache: %w", err)
	}
	return nil
}

// poolKey is independent of the order and repetition of the requested IDs.
func poolKey(epoch int64, subjectIDs, chapterIDs []int) string {
	return fmt.Sprintf("%s:%d:s=%s:c=%s", keyPrefix, epoch,
		utils.JoinInts(utils.UniqueSortedInts(subjectIDs)),
		utils.JoinInts(utils.UniqueSortedInts(chapterIDs)))
}
