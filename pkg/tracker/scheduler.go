// Package tracker runs the periodic price checks for enrolled products.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geniass/pricetrack/pkg/history"
	"github.com/geniass/pricetrack/pkg/scraper"
)

var (
	ErrEmptyURL     = errors.New("product URL is empty")
	ErrTooManyTasks = errors.New("too many tracked products")
	ErrTaskNotFound = errors.New("task not found")
	ErrClosed       = errors.New("scheduler closed")
)

// Fetcher extracts the current title and price from a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (scraper.Product, error)
}

// Recorder persists observations.
type Recorder interface {
	Record(o history.Observation) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock sets the time source for observation timestamps. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep replaces the wait between checks. The function must return
// early with an error only when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithMaxTasks caps the number of concurrently tracked products. 0 means no limit.
func WithMaxTasks(n int) Option {
	return func(s *Scheduler) { s.maxTasks = n }
}

// Scheduler owns the set of running tasks. Each task runs on its own
// goroutine and shares nothing with the others except the Recorder.
type Scheduler struct {
	fetcher  Fetcher
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	maxTasks int

	// ctx is cancelled when the scheduler closes, cutting sleeps short.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
}

func New(f Fetcher, r Recorder, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		fetcher:  f,
		recorder: r,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckOnce fetches url and returns what it found without recording it.
func (s *Scheduler) CheckOnce(ctx context.Context, url string) (history.Observation, error) {
	p, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return history.Observation{}, err
	}
	if p.Title == "" || p.Price == "" {
		return history.Observation{}, fmt.Errorf("fetch %s: %w", url, scraper.ErrExtractionFailed)
	}
	return history.Observation{Time: s.now(), Title: p.Title, URL: url, Price: p.Price}, nil
}

// AddProduct checks url immediately and records the result. When every is
// non-zero the product is then enrolled for periodic checks at that interval.
// The interval is validated before anything is fetched.
func (s *Scheduler) AddProduct(ctx context.Context, url string, every Interval) (history.Observation, *Task, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return history.Observation{}, nil, ErrEmptyURL
	}
	if every != 0 && !every.Valid() {
		return history.Observation{}, nil, fmt.Errorf("%s: %w", every, ErrInvalidInterval)
	}

	o, err := s.CheckOnce(ctx, url)
	if err != nil {
		return history.Observation{}, nil, err
	}
	if err := s.recorder.Record(o); err != nil {
		return o, nil, err
	}
	if every == 0 {
		return o, nil, nil
	}

	t, err := s.Enroll(url, every)
	return o, t, err
}

// Enroll starts checking url every interval. The first check happens right
// away on the task's goroutine; Enroll itself does not block.
func (s *Scheduler) Enroll(url string, every Interval) (*Task, error) {
	if !every.Valid() {
		return nil, fmt.Errorf("%s: %w", every, ErrInvalidInterval)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrEmptyURL
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.maxTasks > 0 && len(s.tasks) >= s.maxTasks {
		s.mu.Unlock()
		return nil, fmt.Errorf("limit is %d: %w", s.maxTasks, ErrTooManyTasks)
	}
	t := newTask(uuid.NewString(), url, every, s.now())
	t.setState(Running)
	s.tasks[t.ID] = t
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("tracking product", "task", t.ID, "url", url, "every", every.String())
	go s.run(t)
	return t, nil
}

// Stop requests the task with the given id to stop.
func (s *Scheduler) Stop(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	t.Stop()
	s.logger.Info("stop requested", "task", id, "url", t.URL)
	return nil
}

// Tasks returns the tasks whose goroutines are still alive, oldest first.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	ts := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		ts = append(ts, t)
	}
	s.mu.Unlock()

	sort.Slice(ts, func(i, j int) bool {
		if ts[i].StartedAt.Equal(ts[j].StartedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].StartedAt.Before(ts[j].StartedAt)
	})
	return ts
}

// Close stops every task, interrupting sleeps, and waits for them to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for _, t := range s.tasks {
		t.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(t *Task) {
	defer func() {
		s.mu.Lock()
		delete(s.tasks, t.ID)
		s.mu.Unlock()
		t.setState(Stopped)
		close(t.done)
		s.wg.Done()
	}()

	for !t.StopRequested() {
		s.cycle(t)
		if err := s.sleep(s.ctx, t.Interval.Duration()); err != nil {
			break
		}
	}
	s.logger.Info("stopped tracking product", "task", t.ID, "url", t.URL)
}

// cycle performs one check. Failures are logged and only cost this cycle.
func (s *Scheduler) cycle(t *Task) {
	o, err := s.CheckOnce(s.ctx, t.URL)
	if err != nil {
		s.logger.Warn("price check failed, skipping", "task", t.ID, "url", t.URL, "error", err)
		return
	}
	if err := s.recorder.Record(o); err != nil {
		s.logger.Error("failed to record price", "task", t.ID, "url", t.URL, "error", err)
		return
	}
	s.logger.Info("price recorded", "task", t.ID, "title", o.Title, "price", o.Price)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
