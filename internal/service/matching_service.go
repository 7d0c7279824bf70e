package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	"github.com/noah-isme/study-match-api/pkg/config"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
	"github.com/noah-isme/study-match-api/pkg/jobs"
)

type CohortLoader interface {
	LoadCohort(ctx context.Context) ([]models.Student, error)
}

type RegistryStore interface {
	Load(ctx context.Context) (models.SlotRegistry, error)
	ReplaceAll(ctx context.Context, registry models.SlotRegistry) error
	ReleaseStudent(ctx context.Context, studentID string) error
}

type RunRecorder interface {
	SaveResult(ctx context.Context, run models.MatchingRun, result *models.MatchingResult) error
	FindByID(ctx context.Context, id string) (*models.MatchingRun, error)
	List(ctx context.Context, filter models.RunFilter) ([]models.MatchingRun, int, error)
	LoadResult(ctx context.Context, id string) (*models.MatchingResult, error)
}

// MatchingService orchestrates matching runs: input resolution, engine
// execution, slot registry upkeep and run bookkeeping.
type MatchingService struct {
	cohort    CohortLoader
	registry  RegistryStore
	runs      RunRecorder
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.MatchingConfig
	store     *runStore
	queue     *jobs.Queue
}

// NewMatchingService wires matching dependencies. The cohort loader,
// registry store, run recorder, cache and metrics are all optional;
// operations that need a missing one fail with a precondition error.
func NewMatchingService(
	cohort CohortLoader,
	registry RegistryStore,
	runs RunRecorder,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.MatchingConfig,
) *MatchingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = 3
	}
	if cfg.MaxGroupSize <= 0 {
		cfg.MaxGroupSize = 5
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 30 * time.Second
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 30 * time.Minute
	}
	return &MatchingService{
		cohort:    cohort,
		registry:  registry,
		runs:      runs,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newRunStore(cfg.ResultTTL),
	}
}

// AttachQueue enables asynchronous run submission.
func (s *MatchingService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// Run executes a matching run synchronously and returns the full outcome.
func (s *MatchingService) Run(ctx context.Context, req dto.RunMatchingRequest) (*dto.RunMatchingResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid matching request payload")
	}
	result, err := s.execute(ctx, uuid.NewString(), req)
	if err != nil {
		return nil, err
	}
	return dto.NewRunMatchingResponse(result), nil
}

// Enqueue submits a run for background execution and returns immediately.
func (s *MatchingService) Enqueue(ctx context.Context, req dto.RunMatchingRequest) (*dto.EnqueueRunResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "asynchronous matching is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid matching request payload")
	}

	runID := uuid.NewString()
	s.store.SaveRun(models.MatchingRun{
		ID:          runID,
		Status:      models.RunStatusPending,
		RequestedAt: time.Now().UTC(),
	}, nil)

	if err := s.queue.Enqueue(jobs.Job{ID: runID, Type: jobTypeMatchingRun, Payload: req}); err != nil {
		s.store.Delete(runID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue matching run")
	}
	return &dto.EnqueueRunResponse{RunID: runID, Status: models.RunStatusPending}, nil
}

const jobTypeMatchingRun = "matching.run"

// HandleJob is the queue handler for asynchronous runs.
func (s *MatchingService) HandleJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.RunMatchingRequest)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	s.store.SetStatus(job.ID, models.RunStatusRunning, "")
	if _, err := s.execute(ctx, job.ID, req); err != nil {
		s.store.SetStatus(job.ID, models.RunStatusFailed, appErrors.FromError(err).Code)
		return err
	}
	return nil
}

func (s *MatchingService) execute(ctx context.Context, runID string, req dto.RunMatchingRequest) (*models.MatchingResult, error) {
	students, err := s.resolveStudents(ctx, req)
	if err != nil {
		return nil, err
	}

	engineCfg := s.engineConfig(req.Options)

	var prior models.SlotRegistry
	if req.UseRegistry {
		if s.registry == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "slot registry store unavailable")
		}
		prior, err = s.registry.Load(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot registry")
		}
	}

	started := time.Now().UTC()
	result, err := runEngine(ctx, students, engineCfg, prior)
	if err != nil {
		s.logger.Sugar().Warnw("matching run failed", "run_id", runID, "error", err)
		return nil, err
	}
	result.RunID = runID

	run := models.MatchingRun{
		ID:             runID,
		Status:         models.RunStatusCompleted,
		StudentCount:   len(students),
		GroupCount:     len(result.Groups),
		UnmatchedCount: len(result.Unmatched),
		ConflictCount:  len(result.Conflicts),
		RequestedAt:    started,
	}
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	s.store.SaveRun(run, result)

	if req.UseRegistry && s.registry != nil {
		begun := time.Now()
		if err := s.registry.ReplaceAll(ctx, result.Registry); err != nil {
			s.logger.Sugar().Warnw("failed to persist slot registry", "run_id", runID, "error", err)
		} else if s.metrics != nil {
			s.metrics.ObserveDBQuery("registry_replace", time.Since(begun))
		}
	}
	if s.runs != nil && s.cfg.PersistRuns {
		begun := time.Now()
		if err := s.runs.SaveResult(ctx, run, result); err != nil {
			s.logger.Sugar().Warnw("failed to persist matching run", "run_id", runID, "error", err)
		} else if s.metrics != nil {
			s.metrics.ObserveDBQuery("save_run", time.Since(begun))
		}
	}
	if s.cache != nil && s.cfg.CacheEnabled {
		if err := s.cache.SaveRunResult(ctx, runID, result); err != nil {
			s.logger.Sugar().Debugw("failed to cache matching result", "run_id", runID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(result)
	}

	s.logger.Sugar().Infow("matching run completed",
		"run_id", runID,
		"students", len(students),
		"groups_formed", result.Stats.GroupsFormed,
		"unmatched", len(result.Unmatched),
		"conflicts", len(result.Conflicts),
		"elapsed", result.Stats.Elapsed,
	)
	return result, nil
}

func (s *MatchingService) resolveStudents(ctx context.Context, req dto.RunMatchingRequest) ([]models.Student, error) {
	if req.Source == "db" {
		if s.cohort == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student cohort store unavailable")
		}
		students, err := s.cohort.LoadCohort(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student cohort")
		}
		if len(students) == 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "student cohort is empty")
		}
		return students, nil
	}

	if len(req.Students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "students are required when source is payload")
	}
	students := make([]models.Student, 0, len(req.Students))
	for _, input := range req.Students {
		student, err := input.ToModel()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "malformed student record")
		}
		students = append(students, student)
	}
	return students, nil
}

func (s *MatchingService) engineConfig(opts *dto.MatchingOptions) engineConfig {
	cfg := engineConfig{
		MinGroupSize:    s.cfg.MinGroupSize,
		MaxGroupSize:    s.cfg.MaxGroupSize,
		AllowUndersized: s.cfg.AllowUndersizedGroups,
		Scorer:          scorerFor(s.cfg.ScoringStrategy),
		Parallelism:     s.cfg.CourseParallelism,
		Deadline:        s.cfg.RunDeadline,
	}
	if opts == nil {
		return cfg
	}
	if opts.MinGroupSize != nil {
		cfg.MinGroupSize = *opts.MinGroupSize
	}
	if opts.MaxGroupSize != nil {
		cfg.MaxGroupSize = *opts.MaxGroupSize
	}
	if opts.AllowUndersizedGroups != nil {
		cfg.AllowUndersized = *opts.AllowUndersizedGroups
	}
	if opts.ScoringStrategy != "" {
		cfg.Scorer = scorerFor(opts.ScoringStrategy)
	}
	if opts.DeadlineMs > 0 {
		cfg.Deadline = time.Duration(opts.DeadlineMs) * time.Millisecond
	}
	return cfg
}

// Get returns the full outcome of a completed run, served from memory,
// cache or the run store in that order.
func (s *MatchingService) Get(ctx context.Context, runID string) (*dto.RunMatchingResponse, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	result, err := s.loadResult(ctx, runID)
	if err != nil {
		return nil, err
	}
	return dto.NewRunMatchingResponse(result), nil
}

// Status returns the bookkeeping record for a run, including pending and
// failed asynchronous runs that never produced a result.
func (s *MatchingService) Status(ctx context.Context, runID string) (*models.MatchingRun, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	if run, ok := s.store.GetRun(runID); ok {
		return &run, nil
	}
	if s.runs != nil {
		run, err := s.runs.FindByID(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load matching run")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "matching run not found")
}

// Result exposes the raw engine result, used by exports.
func (s *MatchingService) Result(ctx context.Context, runID string) (*models.MatchingResult, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	return s.loadResult(ctx, runID)
}

func (s *MatchingService) loadResult(ctx context.Context, runID string) (*models.MatchingResult, error) {
	if result, ok := s.store.GetResult(runID); ok {
		return result, nil
	}
	if s.cache != nil && s.cfg.CacheEnabled {
		result, err := s.cache.GetRunResult(ctx, runID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Debugw("run result cache lookup failed", "run_id", runID, "error", err)
		}
	}
	if s.runs != nil {
		result, err := s.runs.LoadResult(ctx, runID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load matching result")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "matching run not found or expired")
}

// List returns persisted run summaries, newest first.
func (s *MatchingService) List(ctx context.Context, query dto.RunListQuery) ([]models.MatchingRun, *models.Pagination, error) {
	if s.runs == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "run persistence is disabled")
	}
	filter := models.RunFilter{
		Status:   models.RunStatus(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list matching runs")
	}
	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return runs, pagination, nil
}

// RegistryEntries lists every student's committed meeting windows.
func (s *MatchingService) RegistryEntries(ctx context.Context) ([]dto.RegistryEntryPayload, error) {
	if s.registry == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "slot registry store unavailable")
	}
	registry, err := s.registry.Load(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot registry")
	}
	entries := make([]dto.RegistryEntryPayload, 0, len(registry))
	for _, studentID := range registry.StudentIDs() {
		windows := registry.Windows(studentID)
		payloads := make([]dto.WindowPayload, 0, len(windows))
		for _, window := range windows {
			payloads = append(payloads, dto.NewWindowPayload(window))
		}
		entries = append(entries, dto.RegistryEntryPayload{StudentID: studentID, Windows: payloads})
	}
	return entries, nil
}

// ReleaseStudent drops every committed window held for a student, freeing
// their slots for future runs.
func (s *MatchingService) ReleaseStudent(ctx context.Context, studentID string) error {
	if studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if s.registry == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "slot registry store unavailable")
	}
	if err := s.registry.ReleaseStudent(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student has no committed windows")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release student slots")
	}
	return nil
}

// --- Run cache ---

type storedRun struct {
	Run      models.MatchingRun
	Result   *models.MatchingResult
	StoredAt time.Time
}

type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]storedRun
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		items: make(map[string]storedRun),
	}
}

func (s *runStore) SaveRun(run models.MatchingRun, result *models.MatchingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = storedRun{Run: run, Result: result, StoredAt: time.Now()}
}

func (s *runStore) SetStatus(id string, status models.RunStatus, failureCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok {
		return
	}
	entry.Run.Status = status
	entry.Run.FailureCode = failureCode
	if status == models.RunStatusFailed {
		completed := time.Now().UTC()
		entry.Run.CompletedAt = &completed
	}
	s.items[id] = entry
}

func (s *runStore) GetRun(id string) (models.MatchingRun, bool) {
	entry, ok := s.get(id)
	if !ok {
		return models.MatchingRun{}, false
	}
	return entry.Run, true
}

func (s *runStore) GetResult(id string) (*models.MatchingResult, bool) {
	entry, ok := s.get(id)
	if !ok || entry.Result == nil {
		return nil, false
	}
	return entry.Result, true
}

func (s *runStore) get(id string) (storedRun, bool) {
	s.mu.RLock()
	entry, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return storedRun{}, false
	}
	if time.Since(entry.StoredAt) > s.ttl {
		s.Delete(id)
		return storedRun{}, false
	}
	return entry, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
