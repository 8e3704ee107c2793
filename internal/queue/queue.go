// Package queue is the Redis-backed job queue behind batch rendering:
// rendering a whole storyboard enqueues one job per shot, drained by the
// background worker. The worker also drains a per-shot video queue; the video
// batch endpoint generates in-process and does not enqueue onto it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRenderShot    = "queue:render_shot"
	QueueGenerateVideo = "queue:generate_video"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	ProjectID  string    `json:"project_id"`
	ShotID     string    `json:"shot_id"`
	VideoModel string    `json:"video_model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRenderShot enqueues one shot render.
func (q *Queue) EnqueueRenderShot(ctx context.Context, projectID, shotID string) error {
	return q.Enqueue(ctx, QueueRenderShot, &Job{
		ID:        uuid.New(),
		Type:      "render_shot",
		ProjectID: projectID,
		ShotID:    shotID,
	})
}

// EnqueueGenerateVideo enqueues one shot video generation.
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, projectID, shotID, videoModel string) error {
	return q.Enqueue(ctx, QueueGenerateVideo, &Job{
		ID:         uuid.New(),
		Type:       "generate_video",
		ProjectID:  projectID,
		ShotID:     shotID,
		VideoModel: videoModel,
	})
}
