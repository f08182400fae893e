package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/qadhya/drivesync/internal/classify"
	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/metrics"
	"github.com/qadhya/drivesync/internal/models"
	"github.com/qadhya/drivesync/internal/remote"
	"github.com/qadhya/drivesync/internal/runlog"
)

// Store is the persistence the engine needs.
type Store interface {
	classify.Loader
	runlog.Recorder
	ExistingDocuments(ctx context.Context, tenantID string) (map[string]models.DocumentRef, error)
	InsertDocument(ctx context.Context, d *models.Document) error
	UpdateDocumentMetadata(ctx context.Context, tenantID, documentID string, upd models.MetadataUpdate, now time.Time) error
	GetStorageConfig(ctx context.Context, tenantID, provider string) (*models.StorageConfig, error)
	TouchLastSync(ctx context.Context, tenantID, provider string, at time.Time) error
}

// Leaser grants the per-tenant run lease.
type Leaser interface {
	AcquireLease(tenantID, holder string, ttl time.Duration, now time.Time) error
	ReleaseLease(tenantID, holder string) error
}

// ProviderFactory returns a remote provider authorised for a tenant.
type ProviderFactory func(ctx context.Context, tenantID string) (remote.Provider, error)

// Engine runs reconciliations. It holds no per-run state and may be
// shared across goroutines; the lease keeps runs of one tenant apart.
type Engine struct {
	store     Store
	leases    Leaser
	providers ProviderFactory
	retry     remote.RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy sets the walker retry policy.
func WithRetryPolicy(p remote.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. leases may be nil, in which case runs are
// not serialised.
func NewEngine(store Store, leases Leaser, providers ProviderFactory, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		leases:    leases,
		providers: providers,
		retry:     remote.DefaultRetryPolicy(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is what one run accumulates while it executes.
type runState struct {
	run           *runlog.Run
	cfg           SyncConfig
	logger        *slog.Logger
	processed     int
	walkCompleted bool
	rootFromStore bool
	stale         []runlog.StaleCandidate
	fatal         error
}

// fail records a run-ending error.
func (st *runState) fail(err error) {
	st.fatal = err
	st.run.AddError(err.Error())
}

// Run reconciles one tenant. The run is recorded before any other work
// and finalised exactly once, even on panic. The summary is non-nil
// whenever the run record was created. The error is non-nil when the
// run failed; a partial run reports its problems in Summary.Errors.
func (e *Engine) Run(ctx context.Context, cfg SyncConfig) (summary *runlog.Summary, err error) {
	cfg = cfg.withDefaults()

	run := runlog.New(cfg.TenantID, cfg.Provider)
	if err := run.Start(e.now()); err != nil {
		return nil, err
	}
	if err := e.store.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}

	st := &runState{
		run: run,
		cfg: cfg,
		logger: e.logger.With(
			slog.String("tenant_id", cfg.TenantID),
			slog.String("run_id", run.ID),
		),
	}
	st.logger.Info("sync run started")
	metrics.RunStarted()

	defer func() {
		if r := recover(); r != nil {
			st.logger.Error("sync run panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			st.walkCompleted = false
			st.stale = nil
			st.fail(fmt.Errorf("internal error: %v", r))
		}
		summary, err = e.finalize(ctx, st)
	}()

	e.execute(ctx, st)

	return summary, err
}

func (e *Engine) execute(ctx context.Context, st *runState) {
	cfg := st.cfg

	if cfg.TenantID == "" {
		st.fail(apperrors.ErrTenantMissing)
		return
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if e.leases != nil {
		if err := e.leases.AcquireLease(cfg.TenantID, st.run.ID, cfg.LeaseTTL, e.now()); err != nil {
			st.fail(fmt.Errorf("acquiring lease: %w", err))
			return
		}

		var stop func()
		ctx, stop = e.keepLease(ctx, st)
		defer func() {
			stop()
			if err := e.leases.ReleaseLease(cfg.TenantID, st.run.ID); err != nil {
				st.logger.Warn("releasing lease failed", slog.String("error", err.Error()))
			}
		}()
	}

	rootID, err := e.resolveRoot(ctx, st)
	if err != nil {
		st.fail(err)
		return
	}

	provider, err := e.openProvider(ctx, cfg.TenantID)
	if err != nil {
		st.fail(err)
		return
	}

	idx, err := classify.BuildIndex(ctx, e.store, cfg.TenantID)
	if err != nil {
		st.fail(fmt.Errorf("building folder index: %w", err))
		return
	}

	existing, err := e.store.ExistingDocuments(ctx, cfg.TenantID)
	if err != nil {
		st.fail(fmt.Errorf("loading existing documents: %w", err))
		return
	}

	st.logger.Debug("sync prerequisites ready",
		slog.String("root_folder_id", rootID),
		slog.Int("clients_with_folder", len(idx.ClientsByFolder)),
		slog.Int("cases_with_folder", len(idx.CasesByFolder)),
		slog.Int("existing_documents", len(existing)),
	)

	e.walk(ctx, st, provider, rootID, idx, existing)
}

// keepLease renews the run's lease every third of its TTL until stop is
// called. When a renewal is refused the returned context is cancelled
// with errLeaseLost as its cause.
func (e *Engine) keepLease(ctx context.Context, st *runState) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	interval := max(st.cfg.LeaseTTL/3, time.Millisecond)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := e.leases.AcquireLease(st.cfg.TenantID, st.run.ID, st.cfg.LeaseTTL, e.now())
				if err != nil {
					st.logger.Error("renewing lease failed", slog.String("error", err.Error()))
					cancel(fmt.Errorf("%w: %w", errLeaseLost, err))
					return
				}
			}
		}
	}()

	return ctx, func() {
		close(done)
		wg.Wait()
		cancel(nil)
	}
}

// resolveRoot picks the walk root: the explicit override, else the
// tenant's storage configuration.
func (e *Engine) resolveRoot(ctx context.Context, st *runState) (string, error) {
	if st.cfg.RootFolderID != "" {
		return st.cfg.RootFolderID, nil
	}

	sc, err := e.store.GetStorageConfig(ctx, st.cfg.TenantID, st.cfg.Provider)
	if errors.Is(err, apperrors.ErrStorageConfigNotFound) {
		return "", fmt.Errorf("%w: no %s configuration for tenant", apperrors.ErrRootFolderMissing, st.cfg.Provider)
	}
	if err != nil {
		return "", fmt.Errorf("loading storage configuration: %w", err)
	}
	if sc.RootFolderID == "" {
		return "", apperrors.ErrRootFolderMissing
	}

	st.rootFromStore = true
	return sc.RootFolderID, nil
}

func (e *Engine) openProvider(ctx context.Context, tenantID string) (remote.Provider, error) {
	if e.providers == nil {
		return nil, apperrors.ErrCredentialMissing
	}

	provider, err := e.providers(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCredentialMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCredentialMissing, err)
	}
	if provider == nil {
		return nil, apperrors.ErrCredentialMissing
	}

	if checker, ok := provider.(remote.CredentialChecker); ok {
		if err := checker.CheckCredential(ctx); err != nil {
			return nil, fmt.Errorf("validating credential: %w", err)
		}
	}

	return provider, nil
}

func (e *Engine) walk(ctx context.Context, st *runState, provider remote.Provider, rootID string, idx *classify.Index, existing map[string]models.DocumentRef) {
	walker := remote.NewWalker(provider, e.retry, st.logger)
	seen := make(map[string]bool)

	for entry, err := range walker.Walk(ctx, rootID) {
		if err != nil {
			if isCancellation(err) {
				st.fail(cancellation(ctx, err))
			} else {
				st.fail(fmt.Errorf("walk aborted: %w", err))
			}
			return
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			st.fail(cancellation(ctx, ctxErr))
			return
		}

		if entry.IsFolder() || seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		st.run.Scanned++

		if err := e.reconcileFile(ctx, st, idx, existing, entry); err != nil {
			st.run.AddErrorf("%s (%s): %v", entry.Path, entry.ID, err)
			st.logger.Warn("file reconciliation failed",
				slog.String("path", entry.Path),
				slog.String("remote_file_id", entry.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		st.processed++
	}

	st.walkCompleted = true
	st.stale = staleCandidates(existing, seen)
	st.run.StaleCount = len(st.stale)
}

func (e *Engine) reconcileFile(ctx context.Context, st *runState, idx *classify.Index, existing map[string]models.DocumentRef, entry remote.Entry) error {
	action, ref := Decide(entry, existing)

	switch action {
	case ActionSkip:
		return nil

	case ActionUpdate:
		if err := e.store.UpdateDocumentMetadata(ctx, st.cfg.TenantID, ref.ID, metadataUpdate(entry), e.now()); err != nil {
			return err
		}
		st.run.Updated++
		st.logger.Debug("document metadata updated",
			slog.String("document_id", ref.ID),
			slog.String("path", entry.Path),
		)
		return nil

	default:
		cls := classify.Classify(entry, idx, st.cfg.Rules)
		doc := newDocument(st.cfg.TenantID, entry, cls, e.now())
		if err := e.store.InsertDocument(ctx, doc); err != nil {
			return err
		}

		existing[entry.ID] = models.DocumentRef{
			ID:               doc.ID,
			RemoteFileID:     doc.RemoteFileID,
			Name:             doc.Name,
			RemoteModifiedAt: doc.RemoteModifiedAt,
		}
		st.run.Added++
		if doc.NeedsClassification {
			st.run.NeedsClassification++
		}
		st.logger.Debug("document added",
			slog.String("document_id", doc.ID),
			slog.String("path", entry.Path),
			slog.String("method", string(cls.Method)),
			slog.String("client_folder", cls.ClientFolderName),
			slog.String("case_folder", cls.CaseFolderName),
			slog.Bool("needs_classification", doc.NeedsClassification),
		)
		return nil
	}
}

// finalize moves the run to its terminal status and persists it. Writes
// use a context detached from cancellation so a cancelled run is still
// recorded.
func (e *Engine) finalize(ctx context.Context, st *runState) (*runlog.Summary, error) {
	run := st.run
	status := runlog.Outcome(run.ErrorCount(), st.processed, st.walkCompleted)
	if err := run.Finish(status, e.now()); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var finalizeErr error
	if err := e.store.FinalizeSyncRun(wctx, run); err != nil {
		st.logger.Error("persisting sync run failed", slog.String("error", err.Error()))
		finalizeErr = fmt.Errorf("finalizing sync run: %w", err)
	}

	if status != runlog.StatusFailed && st.rootFromStore {
		if err := e.store.TouchLastSync(wctx, run.TenantID, run.Provider, *run.CompletedAt); err != nil {
			st.logger.Warn("stamping last sync failed", slog.String("error", err.Error()))
		}
	}

	metrics.RunFinished(string(status), time.Duration(run.DurationMs)*time.Millisecond, metrics.RunCounts{
		Scanned:             run.Scanned,
		Added:               run.Added,
		Updated:             run.Updated,
		NeedsClassification: run.NeedsClassification,
		Errors:              run.ErrorCount(),
	})
	if st.walkCompleted {
		metrics.SetStaleCandidates(run.TenantID, run.StaleCount)
	}

	st.logger.Info("sync run finished",
		slog.String("status", string(status)),
		slog.Int("scanned", run.Scanned),
		slog.Int("added", run.Added),
		slog.Int("updated", run.Updated),
		slog.Int("needs_classification", run.NeedsClassification),
		slog.Int("stale", run.StaleCount),
		slog.Int("errors", run.ErrorCount()),
		slog.Int64("duration_ms", run.DurationMs),
	)

	summary := run.Summary(st.stale)

	if finalizeErr != nil {
		return summary, finalizeErr
	}
	if status == runlog.StatusFailed {
		cause := st.fatal
		if cause == nil {
			cause = errors.New(firstOr(run.Errors, "unknown error"))
		}
		return summary, fmt.Errorf("sync run %s failed: %w", run.ID, cause)
	}
	return summary, nil
}

// cancellation describes why ctx ended. A lost lease is reported as
// such rather than as a plain cancellation.
func cancellation(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errLeaseLost) {
		return cause
	}
	return fmt.Errorf("cancelled: %w", err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
