// Package run drives a workspace queue through the remote extraction service
// one file at a time.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/certscan/backend/internal/logging"
	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/notify"
	"github.com/certscan/backend/internal/ocrclient"
	"github.com/certscan/backend/internal/queue"
)

// Extractor is the remote service the controller submits files to.
type Extractor interface {
	SubmitForOCR(ctx context.Context, file models.FileRef, content []byte) (models.ExtractedFields, error)
	SubmitForGemini(ctx context.Context, file models.FileRef, content []byte) (models.ExtractedFields, error)
	CheckGeminiAvailability(ctx context.Context) (ocrclient.Availability, error)
}

// ContentSource returns the bytes of a queued file.
type ContentSource interface {
	Content(id string) ([]byte, error)
}

// ResultSink receives every successful extraction.
type ResultSink interface {
	Append(fields models.ExtractedFields, file models.FileRef) models.ResultRow
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

const (
	defaultMaxAttempts          = 3
	defaultRetryDelay           = 2 * time.Second
	defaultAvailabilityAttempts = 5
	defaultAvailabilityBase     = 500 * time.Millisecond
	defaultAvailabilityMax      = 5 * time.Second
)

// Option customizes the controller.
type Option func(*Controller)

// WithMaxAttempts sets how many consecutive failures abort a run.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause between attempts on the same file.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithAvailabilityPolicy bounds the Gemini availability poll.
func WithAvailabilityPolicy(attempts int, base, maxDelay time.Duration) Option {
	return func(c *Controller) {
		if attempts > 0 {
			c.availAttempts = attempts
		}
		if base >= 0 {
			c.availBase = base
		}
		if maxDelay > 0 {
			c.availMax = maxDelay
		}
	}
}

// WithSleeper overrides how waits are performed (useful for tests).
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller is the state machine behind the Run button. At most one run is
// active and at most one remote request is in flight.
type Controller struct {
	queue   *queue.Store
	content ContentSource
	results ResultSink
	client  Extractor
	events  notify.Notifier
	logger  *slog.Logger

	maxAttempts   int
	retryDelay    time.Duration
	availAttempts int
	availBase     time.Duration
	availMax      time.Duration
	sleep         Sleeper
	now           func() time.Time

	mu     sync.RWMutex
	status models.RunStatus
	done   chan struct{}
}

// NewController wires a controller. events may be nil.
func NewController(q *queue.Store, content ContentSource, results ResultSink, client Extractor, events notify.Notifier, opts ...Option) *Controller {
	c := &Controller{
		queue:         q,
		content:       content,
		results:       results,
		client:        client,
		events:        events,
		maxAttempts:   defaultMaxAttempts,
		retryDelay:    defaultRetryDelay,
		availAttempts: defaultAvailabilityAttempts,
		availBase:     defaultAvailabilityBase,
		availMax:      defaultAvailabilityMax,
		sleep:         sleepContext,
		now:           time.Now,
		status:        models.RunStatus{State: models.RunStateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "run")
	return c
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() models.RunStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.status
	if s.Current != nil {
		cur := *s.Current
		s.Current = &cur
	}
	if s.LastOutcome != nil {
		out := *s.LastOutcome
		s.LastOutcome = &out
	}
	return s
}

// Run processes the queue synchronously and returns how the run ended. The
// error is non-nil whenever the queue was not fully drained.
func (c *Controller) Run(ctx context.Context, backend models.Backend) (models.RunOutcome, error) {
	if err := c.claim(backend); err != nil {
		return models.RunOutcome{}, err
	}
	return c.execute(ctx, backend)
}

// Start claims the controller and processes the queue in the background.
func (c *Controller) Start(ctx context.Context, backend models.Backend) error {
	if err := c.claim(backend); err != nil {
		return err
	}
	go func() {
		// Failures are reported through events and Status.
		_, _ = c.execute(ctx, backend)
	}()
	return nil
}

// Wait blocks until the active run, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) claim(backend models.Backend) error {
	if _, ok := models.ParseBackend(string(backend)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.State != models.RunStateIdle {
		return ErrRunInProgress
	}
	if !c.queue.Lock() {
		return ErrRunInProgress
	}
	c.done = make(chan struct{})
	c.status = models.RunStatus{
		State:       models.RunStateProcessing,
		Backend:     backend,
		LastOutcome: c.status.LastOutcome,
	}
	if backend == models.BackendGemini {
		c.status.State = models.RunStateCheckingAvailability
	}
	return nil
}

func (c *Controller) execute(ctx context.Context, backend models.Backend) (models.RunOutcome, error) {
	outcome := models.RunOutcome{Backend: backend, StartedAt: c.now()}
	c.logger.Info("run started", "backend", backend, "queued", c.queue.Len())
	c.publishState()

	var err error
	if backend == models.BackendGemini {
		outcome, err = c.checkAvailability(ctx, outcome)
		if err == nil {
			c.setState(models.RunStateProcessing)
		}
	}
	if err == nil {
		outcome, err = c.drain(ctx, backend, outcome)
	}

	return c.finish(outcome, err), err
}

func (c *Controller) checkAvailability(ctx context.Context, outcome models.RunOutcome) (models.RunOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= c.availAttempts; attempt++ {
		avail, err := c.client.CheckGeminiAvailability(ctx)
		if err == nil {
			if avail.Available {
				return outcome, nil
			}
			outcome.Status = models.OutcomeAvailabilityDenied
			outcome.Message = ErrAvailabilityDenied.Error()
			return outcome, ErrAvailabilityDenied
		}
		if ctx.Err() != nil {
			return c.canceled(outcome, ctx.Err())
		}

		lastErr = err
		c.logger.Warn("availability check failed", "attempt", attempt, "max_attempts", c.availAttempts, "error", err)
		if attempt == c.availAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return c.canceled(outcome, err)
		}
	}

	err := fmt.Errorf("%w after %d attempts: %w", ErrAvailabilityUnknown, c.availAttempts, lastErr)
	outcome.Status = models.OutcomeAvailabilityUnreachable
	outcome.Attempts = c.availAttempts
	outcome.Message = err.Error()
	return outcome, err
}

// backoff returns the wait after the given 1-based failed poll: base, 2*base,
// 4*base, ... capped at the maximum.
func (c *Controller) backoff(attempt int) time.Duration {
	d := c.availBase
	for i := 1; i < attempt; i++ {
		if d >= c.availMax/2 {
			return c.availMax
		}
		d *= 2
	}
	return min(d, c.availMax)
}

func (c *Controller) drain(ctx context.Context, backend models.Backend, outcome models.RunOutcome) (models.RunOutcome, error) {
	for {
		head, ok := c.queue.Head()
		if !ok {
			outcome.Status = models.OutcomeCompleted
			return outcome, nil
		}

		fields, attempts, err := c.process(ctx, backend, head)
		if err != nil {
			outcome.Attempts = attempts
			outcome.FailedFile = &head
			if ctx.Err() != nil {
				return c.canceled(outcome, ctx.Err())
			}
			var rejected *RejectedError
			if errors.As(err, &rejected) {
				outcome.Status = models.OutcomeRejected
			} else {
				outcome.Status = models.OutcomeRetryExhausted
			}
			outcome.Message = err.Error()
			return outcome, err
		}

		c.queue.DequeueHead()
		c.queue.AppendHistory(head)
		row := c.results.Append(fields, head)
		outcome.Processed++

		c.mu.Lock()
		c.status.Processed = outcome.Processed
		c.status.Current = nil
		c.status.Attempt = 0
		c.mu.Unlock()

		c.logger.Info("file processed", "file", head.Name, "attempts", attempts)
		c.publish(notify.EventResultAdded, row)
		c.publish(notify.EventQueueUpdated, c.queue.List())
	}
}

// process submits one file until it succeeds, is rejected, or runs out of
// attempts. The attempt counter starts over for every file.
func (c *Controller) process(ctx context.Context, backend models.Backend, file models.FileRef) (models.ExtractedFields, int, error) {
	content, err := c.content.Content(file.ID)
	if err != nil {
		return nil, 0, &RejectedError{EntryID: file.ID, FileName: file.Name, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.mu.Lock()
		cur := file
		c.status.Current = &cur
		c.status.Attempt = attempt
		c.mu.Unlock()
		c.publish(notify.EventRunAttempt, attemptPayload{File: file, Attempt: attempt, MaxAttempts: c.maxAttempts})

		fields, err := c.submit(ctx, backend, file, content)
		if err == nil {
			return fields, attempt, nil
		}
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		lastErr = err
		var remote *ocrclient.RemoteServiceError
		if errors.As(err, &remote) && !remote.Retryable() {
			c.logger.Warn("file rejected", "file", file.Name, "status", remote.Status, "error", err)
			return nil, attempt, &RejectedError{EntryID: file.ID, FileName: file.Name, Err: err}
		}

		c.logger.Warn("attempt failed", "file", file.Name, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if attempt == c.maxAttempts {
			break
		}
		c.publish(notify.EventRunRetry, retryPayload{File: file, Attempt: attempt, Delay: c.retryDelay.String(), Error: err.Error()})
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			return nil, attempt, err
		}
	}

	return nil, c.maxAttempts, &RetryExhaustedError{
		EntryID:  file.ID,
		FileName: file.Name,
		Attempts: c.maxAttempts,
		Err:      lastErr,
	}
}

func (c *Controller) submit(ctx context.Context, backend models.Backend, file models.FileRef, content []byte) (models.ExtractedFields, error) {
	if backend == models.BackendGemini {
		return c.client.SubmitForGemini(ctx, file, content)
	}
	return c.client.SubmitForOCR(ctx, file, content)
}

func (c *Controller) canceled(outcome models.RunOutcome, err error) (models.RunOutcome, error) {
	outcome.Status = models.OutcomeCanceled
	outcome.Message = err.Error()
	return outcome, err
}

func (c *Controller) finish(outcome models.RunOutcome, err error) models.RunOutcome {
	outcome.Remaining = c.queue.Len()
	outcome.FinishedAt = c.now()

	if err != nil && outcome.Status != models.OutcomeCanceled {
		c.setState(models.RunStateBlocked)
		c.notify(failureNotice(outcome, err))
	}

	c.queue.Unlock()

	c.mu.Lock()
	c.status.State = models.RunStateIdle
	c.status.Current = nil
	c.status.Attempt = 0
	c.status.LastOutcome = &outcome
	done := c.done
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("run stopped", "status", outcome.Status, "processed", outcome.Processed, "remaining", outcome.Remaining, "error", err)
	} else {
		c.logger.Info("run completed", "processed", outcome.Processed)
		c.notify(notify.Notice{
			Level:   notify.LevelInfo,
			Title:   "Run completed",
			Message: fmt.Sprintf("Processed %d file(s).", outcome.Processed),
		})
	}
	c.publishState()
	c.publish(notify.EventRunFinished, outcome)
	c.publish(notify.EventQueueUpdated, c.queue.List())
	close(done)
	return outcome
}

func failureNotice(outcome models.RunOutcome, err error) notify.Notice {
	n := notify.Notice{Level: notify.LevelError, Message: err.Error()}
	switch outcome.Status {
	case models.OutcomeAvailabilityDenied:
		n.Level = notify.LevelWarning
		n.Title = "Gemini unavailable"
		n.Message = "Gemini API is not available on the server. Provide a valid API key or select another model."
	case models.OutcomeAvailabilityUnreachable:
		n.Title = "Extraction service unreachable"
	case models.OutcomeRejected:
		n.Title = "File rejected"
	default:
		n.Title = "Run stopped"
	}
	if outcome.Remaining > 0 && outcome.FailedFile != nil {
		n.Message += fmt.Sprintf(" (%d file(s) left in the queue, starting with %s)", outcome.Remaining, outcome.FailedFile.Name)
	}
	return n
}

func (c *Controller) setState(s models.RunState) {
	c.mu.Lock()
	c.status.State = s
	c.mu.Unlock()
	c.publishState()
}

func (c *Controller) publishState() {
	c.publish(notify.EventRunState, c.Status())
}

func (c *Controller) notify(n notify.Notice) {
	if c.events == nil {
		return
	}
	c.events.Notify(n.Level, n.Title, n.Message)
}

func (c *Controller) publish(t notify.EventType, payload any) {
	if c.events == nil {
		return
	}
	c.events.Publish(notify.Event{Type: t, Payload: payload})
}

type attemptPayload struct {
	File        models.FileRef `json:"file"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"maxAttempts"`
}

type retryPayload struct {
	File    models.FileRef `json:"file"`
	Attempt int            `json:"attempt"`
	Delay   string         `json:"delay"`
	Error   string         `json:"error"`
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
