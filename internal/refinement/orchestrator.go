// Package refinement runs the scheduled habit refinement batch: it clusters
// every opted-in user's recent calendar actions and upserts the resulting
// habit clusters, recording one job log row per run.
package refinement

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/cadence/internal/embedding"
	"github.com/thebtf/cadence/internal/habits"
	"github.com/thebtf/cadence/internal/lock"
	"github.com/thebtf/cadence/pkg/models"
)

// Run defaults.
const (
	// DefaultWindow is the trailing action window considered per user.
	DefaultWindow = 30 * 24 * time.Hour

	// DefaultLeaseTTL bounds how long a crashed run blocks the next one.
	DefaultLeaseTTL = 30 * time.Minute
)

var (
	// ErrUnauthorized is returned when the trigger credential does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRunInProgress is returned when another run holds the run claim.
	ErrRunInProgress = errors.New("refinement run already in progress")
)

// UserDirectory lists opted-in users and stamps their refinement time.
type UserDirectory interface {
	ListOptedIn(ctx context.Context) ([]models.User, error)
	MarkRefined(ctx context.Context, userID string, at time.Time) error
}

// ActionLog reads qualifying actions, newest first.
type ActionLog interface {
	ListQualifyingSince(ctx context.Context, userID string, since time.Time) ([]models.ActionRecord, error)
}

// ClusterRepository stores habit clusters.
type ClusterRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.HabitCluster, error)
	CreateCluster(ctx context.Context, cluster *models.HabitCluster) error
	UpdateCluster(ctx context.Context, cluster *models.HabitCluster) error
}

// JobLog records run lifecycle rows.
type JobLog interface {
	StartJob(ctx context.Context, jobType string, at time.Time) (*models.RefinementJobLog, error)
	CompleteJob(ctx context.Context, id string, processed int, at time.Time) error
	FailJob(ctx context.Context, id string, message string, at time.Time) error
}

// Notifier receives job lifecycle events. Implemented by sse.Broadcaster.
type Notifier interface {
	Broadcast(data interface{})
}

// Deps are the collaborators a run needs.
type Deps struct {
	Users    UserDirectory
	Actions  ActionLog
	Clusters ClusterRepository
	Jobs     JobLog
	Provider embedding.Provider
	// Locker may be nil, in which case overlapping runs are not excluded.
	Locker lock.Locker
}

// UserOutcome describes what a run did for one user.
type UserOutcome struct {
	UserID   string `json:"user_id"`
	Actions  int    `json:"actions"`
	Clusters int    `json:"clusters"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result summarizes a completed run.
type Result struct {
	JobID     string        `json:"job_id"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Users     []UserOutcome `json:"users"`
}

// Message is the human-readable summary returned to the trigger caller.
func (r *Result) Message() string {
	return fmt.Sprintf("Refined habits for %d of %d users (%d skipped, %d failed)",
		r.Processed, len(r.Users), r.Skipped, r.Failed)
}

// Orchestrator drives refinement runs.
type Orchestrator struct {
	deps     Deps
	notifier Notifier
	metrics  *runMetrics

	secretMu sync.RWMutex
	secret   string
	window   time.Duration
	leaseTTL time.Duration
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSecret sets the shared trigger secret. An empty secret rejects every trigger.
func WithSecret(secret string) Option {
	return func(o *Orchestrator) { o.secret = secret }
}

// WithWindow sets the trailing action window.
func WithWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithLeaseTTL sets the run claim lifetime.
func WithLeaseTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.leaseTTL = d
		}
	}
}

// WithNotifier sets the job event sink.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMeterProvider sets the provider for run metrics. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.metrics = newRunMetrics(mp) }
}

// New creates an orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:     deps,
		window:   DefaultWindow,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = newRunMetrics(otel.GetMeterProvider())
	}
	return o
}

// SetSecret replaces the shared trigger secret.
func (o *Orchestrator) SetSecret(secret string) {
	o.secretMu.Lock()
	o.secret = secret
	o.secretMu.Unlock()
}

// Authorize reports whether credential matches the configured secret.
func (o *Orchestrator) Authorize(credential string) bool {
	o.secretMu.RLock()
	secret := o.secret
	o.secretMu.RUnlock()

	if secret == "" || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(secret)) == 1
}

// Trigger validates credential and runs one refinement batch.
// A rejected credential creates no job row.
func (o *Orchestrator) Trigger(ctx context.Context, credential string) (*Result, error) {
	if !o.Authorize(credential) {
		log.Warn().Msg("Rejected refinement trigger with invalid credential")
		return nil, ErrUnauthorized
	}
	return o.Run(ctx)
}

// Run executes one refinement batch. Users are processed sequentially and a
// failure for one user never aborts the others. An error is returned only when
// the run itself cannot proceed, in which case the job row is marked failed.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := o.now()

	if o.deps.Locker != nil {
		lease, err := o.deps.Locker.Acquire(ctx, models.JobTypeHabitRefinement, o.leaseTTL)
		if errors.Is(err, lock.ErrClaimHeld) {
			log.Info().Msg("Refinement run skipped, another run holds the claim")
			return nil, ErrRunInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire run claim: %w", err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("Failed to release run claim")
			}
		}()
	}

	job, err := o.deps.Jobs.StartJob(ctx, models.JobTypeHabitRefinement, started)
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	logger := log.With().Str("jobId", job.ID).Logger()
	logger.Info().Msg("Refinement run started")
	o.notify(map[string]interface{}{
		"type":  "refinement_started",
		"jobId": job.ID,
	})

	users, err := o.deps.Users.ListOptedIn(ctx)
	if err != nil {
		err = fmt.Errorf("load opted-in users: %w", err)
		o.fail(ctx, job, started, err)
		return nil, err
	}

	result := &Result{JobID: job.ID, Users: make([]UserOutcome, 0, len(users))}
	for _, u := range users {
		outcome, err := o.refineUser(ctx, u.ID)
		switch {
		case err != nil:
			outcome.Error = err.Error()
			result.Failed++
			logger.Error().Err(err).Str("userId", u.ID).Msg("Habit refinement failed for user")
			o.notify(map[string]interface{}{
				"type":   "refinement_user_failed",
				"jobId":  job.ID,
				"userId": u.ID,
				"error":  err.Error(),
			})
		case outcome.Skipped:
			result.Skipped++
		default:
			result.Processed++
			logger.Debug().
				Str("userId", u.ID).
				Int("actions", outcome.Actions).
				Int("clusters", outcome.Clusters).
				Msg("Refined user habits")
		}
		o.metrics.recordUser(ctx, outcome, err)
		result.Users = append(result.Users, outcome)
	}

	if err := o.deps.Jobs.CompleteJob(ctx, job.ID, result.Processed, o.now()); err != nil {
		err = fmt.Errorf("complete job: %w", err)
		o.fail(ctx, job, started, err)
		return nil, err
	}
	o.metrics.recordRun(ctx, models.JobStatusCompleted, o.now().Sub(started))

	logger.Info().
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Refinement run completed")
	o.notify(map[string]interface{}{
		"type":      "refinement_completed",
		"jobId":     job.ID,
		"processed": result.Processed,
		"failed":    result.Failed,
	})
	return result, nil
}

// refineUser runs the pipeline for one user. Panics are returned as errors so
// they stay confined to the user.
func (o *Orchestrator) refineUser(ctx context.Context, userID string) (outcome UserOutcome, err error) {
	outcome.UserID = userID
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	actions, err := o.deps.Actions.ListQualifyingSince(ctx, userID, o.now().Add(-o.window))
	if err != nil {
		return outcome, fmt.Errorf("load actions: %w", err)
	}
	outcome.Actions = len(actions)
	if len(actions) == 0 {
		outcome.Skipped = true
		return outcome, nil
	}

	computed, err := habits.Cluster(ctx, o.deps.Provider, actions)
	if err != nil {
		return outcome, err
	}
	if len(computed) == 0 {
		outcome.Skipped = true
		return outcome, nil
	}
	computed = habits.Deduplicate(computed)
	outcome.Clusters = len(computed)

	existing, err := o.deps.Clusters.ListByUser(ctx, userID)
	if err != nil {
		return outcome, fmt.Errorf("load clusters: %w", err)
	}

	stats, err := Reconcile(ctx, o.deps.Clusters, userID, existing, computed, o.now())
	outcome.Created, outcome.Updated = stats.Created, stats.Updated
	if err != nil {
		return outcome, err
	}

	if err := o.deps.Users.MarkRefined(ctx, userID, o.now()); err != nil {
		return outcome, fmt.Errorf("mark refined: %w", err)
	}
	return outcome, nil
}

// fail marks the job failed and records the run.
func (o *Orchestrator) fail(ctx context.Context, job *models.RefinementJobLog, started time.Time, cause error) {
	log.Error().Err(cause).Str("jobId", job.ID).Msg("Refinement run failed")
	if err := o.deps.Jobs.FailJob(context.WithoutCancel(ctx), job.ID, cause.Error(), o.now()); err != nil {
		log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to mark job failed")
	}
	o.metrics.recordRun(ctx, models.JobStatusFailed, o.now().Sub(started))
	o.notify(map[string]interface{}{
		"type":  "refinement_failed",
		"jobId": job.ID,
		"error": cause.Error(),
	})
}

func (o *Orchestrator) notify(event map[string]interface{}) {
	if o.notifier != nil {
		o.notifier.Broadcast(event)
	}
}
