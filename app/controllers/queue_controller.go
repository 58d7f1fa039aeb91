package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/relayfin/payledger/internal/pkg/jobqueue"
	"github.com/relayfin/payledger/internal/pkg/metrics"
)

// QueueController exposes queue state for observability: pending/processing
// sizes, lifecycle stats, pipeline counters and the dead-letter records kept
// for manual recovery.
type QueueController struct {
	queue     *jobqueue.Queue
	collector *metrics.RedisCollector
}

// NewQueueController creates the queue observability controller
func NewQueueController(queue *jobqueue.Queue, collector *metrics.RedisCollector) *QueueController {
	return &QueueController{queue: queue, collector: collector}
}

// HandleQueueStats handles GET /api/v1/queue/stats
func (ctrl *QueueController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.Context()

	pending, err := ctrl.queue.GetQueueSize(ctx)
	if err != nil {
		log.Errorf("[Queue] Failed to read queue size: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue unavailable"})
	}
	processing, err := ctrl.queue.GetProcessingSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue unavailable"})
	}
	deadLetters, err := ctrl.queue.GetDeadLetterSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue unavailable"})
	}

	stats, err := ctrl.queue.GetJobStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue unavailable"})
	}

	counters, err := ctrl.collector.Snapshot(ctx)
	if err != nil {
		log.Warnf("[Queue] Failed to read counters: %v", err)
		counters = map[string]int64{}
	}

	return c.JSON(fiber.Map{
		"pending":      pending,
		"processing":   processing,
		"dead_letters": deadLetters,
		"job_stats":    stats,
		"counters":     counters,
	})
}

// HandleDeadLetters handles GET /api/v1/queue/dead-letters
func (ctrl *QueueController) HandleDeadLetters(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 100))

	jobs, err := ctrl.queue.GetDeadLetterJobs(c.Context(), limit)
	if err != nil {
		log.Errorf("[Queue] Failed to list dead-letter jobs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue unavailable"})
	}

	return c.JSON(fiber.Map{
		"count": len(jobs),
		"jobs":  jobs,
	})
}
