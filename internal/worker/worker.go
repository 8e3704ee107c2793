// Package worker drains the batch queues in the background. Concurrency is
// effectively bounded twice: by the worker goroutine count here and by the
// orchestrator's image/video semaphores, so a huge enqueue cannot stampede
// the generation backends.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bobarin/muvi/internal/queue"
	"github.com/bobarin/muvi/internal/render"
)

type Worker struct {
	queue *queue.Queue
	orch  *render.Orchestrator
}

func New(q *queue.Queue, orch *render.Orchestrator) *Worker {
	return &Worker{queue: q, orch: orch}
}

// Start launches the queue processors and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRenderShot, w.handleRenderShot)
		go w.processQueue(ctx, queue.QueueGenerateVideo, w.handleGenerateVideo)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}
			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, shot: %s)", job.ID, job.Type, job.ShotID)
			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed", job.ID)
			}
		}
	}
}

func (w *Worker) handleRenderShot(ctx context.Context, job *queue.Job) error {
	_, err := w.orch.RenderShot(ctx, job.ProjectID, job.ShotID, "")
	return err
}

func (w *Worker) handleGenerateVideo(ctx context.Context, job *queue.Job) error {
	_, err := w.orch.GenerateShotVideo(ctx, job.ProjectID, job.ShotID, job.VideoModel)
	return err
}
