package jobqueue

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/relayfin/payledger/app/repository"
	"github.com/relayfin/payledger/internal/pkg/cache"
	"github.com/relayfin/payledger/internal/pkg/dedupe"
	"github.com/relayfin/payledger/internal/pkg/env"
	"github.com/relayfin/payledger/internal/pkg/metrics"
)

// Manager wires the global job queue to the payment processor and the
// observability listeners
type Manager struct {
	queue     *Queue
	collector *metrics.RedisCollector
	mu        sync.Mutex
	running   bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := 3
		if v, err := strconv.Atoi(env.GetEnv("QUEUE_WORKERS", "3")); err == nil && v > 0 {
			workers = v
		}

		client := cache.GetClient()
		collector := metrics.NewRedisCollector(client)
		repos := repository.GetGlobalRepositories()
		processor := NewPaymentProcessor(
			repos.User,
			repos.PaymentEvent,
			repos.LedgerEntry,
			dedupe.NewCache(client),
			collector,
		)

		queue := NewQueue(workers, processor)
		queue.AddListener(&loggingListener{})
		queue.AddListener(&metricsListener{collector: collector})

		globalManager = &Manager{
			queue:     queue,
			collector: collector,
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// GetCollector returns the shared metrics collector
func (m *Manager) GetCollector() *metrics.RedisCollector {
	return m.collector
}

// Start starts the job queue workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	log.Info("[JobQueue Manager] Starting job queue")
	m.queue.Start()
	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	log.Info("[JobQueue Manager] Stopping job queue...")
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// loggingListener mirrors the job lifecycle into the application log
type loggingListener struct{}

func (loggingListener) OnActive(job *Job) {
	log.Infof("[JobQueue] Job %s is now active", job.ID)
}

func (loggingListener) OnCompleted(job *Job) {
	log.Infof("[JobQueue] Job %s completed with outcome %s", job.ID, job.Outcome)
}

func (loggingListener) OnFailed(job *Job, err error) {
	log.Errorf("[JobQueue] Job %s failed after %d attempt(s): %v", job.ID, job.Attempts, err)
}

// metricsListener counts failures. Success and duplicate outcomes are counted
// by the processor itself, where the classification happens.
type metricsListener struct {
	collector metrics.Collector
}

func (metricsListener) OnActive(*Job) {}

func (metricsListener) OnCompleted(*Job) {}

func (l metricsListener) OnFailed(job *Job, _ error) {
	l.collector.Inc(metrics.CounterFailed)
	if job.Status == JobStatusDeadLetter {
		l.collector.Inc(metrics.CounterDeadLetter)
	}
}
