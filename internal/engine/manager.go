package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/optolib/internal/domain"
)

// finishedHistory bounds how many finished jobs stay visible.
const finishedHistory = 50

// ProgressSource reports live transfer progress for a key.
type ProgressSource interface {
	Progress(key domain.BookKey) int
}

// JobManager gives fire-and-forget download requests an id that can be polled.
type JobManager struct {
	mu       sync.RWMutex
	engine   *Engine
	progress ProgressSource
	jobs     map[string]*domain.Job
	finished []string
}

func NewJobManager(e *Engine, progress ProgressSource) *JobManager {
	return &JobManager{
		engine:   e,
		progress: progress,
		jobs:     make(map[string]*domain.Job),
	}
}

// Submit starts (or joins) the transfer for key and returns the new job.
func (m *JobManager) Submit(key domain.BookKey, title, sourceURL string) domain.Job {
	job := &domain.Job{
		ID:        ksuid.New().String(),
		Key:       key,
		Title:     title,
		SourceURL: sourceURL,
		Status:    domain.StatusDownloading,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	done := m.engine.Start(key, title, sourceURL)
	go func() {
		m.finalizeJob(job.ID, <-done)
	}()

	return *job
}

// Get returns a copy of the job with live progress filled in.
func (m *JobManager) Get(id string) (domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return m.view(job), true
}

// All returns every known job, newest first.
func (m *JobManager) All() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, m.view(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *JobManager) view(job *domain.Job) domain.Job {
	v := *job
	if v.Status == domain.StatusDownloading && m.progress != nil {
		v.Progress = m.progress.Progress(v.Key)
	}
	return v
}

func (m *JobManager) finalizeJob(id string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, found := m.jobs[id]
	if !found {
		return
	}

	job.FinishedAt = time.Now()
	if ok {
		job.Status = domain.StatusCompleted
		job.Progress = 100
	} else {
		job.Status = domain.StatusFailed
	}

	m.finished = append(m.finished, id)
	for len(m.finished) > finishedHistory {
		delete(m.jobs, m.finished[0])
		m.finished = m.finished[1:]
	}
}
