package services

import (
	"context"
	"errors"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/application/sagas"
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/drafts"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/patch"
	"blueprint-drafts/domain/versioning"
	pkgerrors "blueprint-drafts/pkg/errors"

	"go.uber.org/zap"
)

// ProposalLimiter limits how often a source may submit proposals
type ProposalLimiter interface {
	Allow(ctx context.Context, source string) (bool, error)
}

// EditResult is the outcome of a local edit, undo or redo
type EditResult struct {
	Ops  []patch.Op  `json:"ops"`
	View drafts.View `json:"view"`
}

// CommitOutcome is the outcome of a commit or checkpoint
type CommitOutcome struct {
	Version *versioning.BlueprintVersion `json:"version"`
	View    drafts.View                  `json:"view"`
}

// PreviewOutcome is the outcome of one preview run. A stale report was
// computed for a draft state that no longer exists and is not attached.
type PreviewOutcome struct {
	Report   ports.PreviewReport `json:"report"`
	Advisory drafts.Advisory     `json:"advisory"`
	Attached bool                `json:"attached"`
	Stale    bool                `json:"stale"`
}

// AdvisoryError returns the report as a non-fatal SandboxAdvisory error, or
// nil when the preview passed
func (o *PreviewOutcome) AdvisoryError() error {
	if o.Report.OK {
		return nil
	}
	messages := make([]string, 0, len(o.Report.Errors))
	for _, issue := range o.Report.Errors {
		messages = append(messages, issue.Path+": "+issue.Message)
	}
	return pkgerrors.SandboxAdvisory(messages)
}

// Reconciler is the single entry point for editing sessions. It composes the
// draft state machine with persistence, the event bus and the preview runner.
type Reconciler struct {
	sessions  *SessionManager
	bus       ports.EventPublisher
	runner    ports.PreviewRunner
	commits   *sagas.CommitSaga
	limiter   ProposalLimiter
	notifier  ports.Notifier
	metrics   ports.MetricsRecorder
	tracer    ports.Tracer
	validator *validators.BlueprintValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler. limiter, notifier, metrics and
// tracer are optional.
func NewReconciler(
	sessions *SessionManager,
	bus ports.EventPublisher,
	runner ports.PreviewRunner,
	commits *sagas.CommitSaga,
	limiter ProposalLimiter,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	tracer ports.Tracer,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sessions:  sessions,
		bus:       bus,
		runner:    runner,
		commits:   commits,
		limiter:   limiter,
		notifier:  notifier,
		metrics:   metrics,
		tracer:    tracer,
		validator: validators.NewBlueprintValidator(sessions.Config()),
		logger:    logger,
		now:       time.Now,
	}
}

// OpenSession starts a session on the latest committed version of blueprintID
func (r *Reconciler) OpenSession(ctx context.Context, blueprintID string) (drafts.View, error) {
	var view drafts.View
	err := r.observe(ctx, "OpenSession", func(ctx context.Context) error {
		sessionID, err := r.sessions.Open(ctx, blueprintID)
		if err != nil {
			return err
		}
		view, err = r.View(ctx, sessionID)
		return err
	})
	return view, err
}

// CloseSession ends a session
func (r *Reconciler) CloseSession(ctx context.Context, sessionID string) error {
	return r.observe(ctx, "CloseSession", func(ctx context.Context) error {
		return r.sessions.Close(sessionID)
	})
}

// View returns the read-only view of a session's draft
func (r *Reconciler) View(ctx context.Context, sessionID string) (drafts.View, error) {
	var view drafts.View
	err := r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
		view = d.View()
		return nil
	})
	return view, err
}

// Connect registers an editor connection for pushed session events
func (r *Reconciler) Connect(ctx context.Context, sessionID, connectionID string) error {
	if r.notifier == nil {
		return pkgerrors.NewUnavailableError("notifier")
	}
	if err := r.sessions.WithSession(sessionID, func(*drafts.Draft) error { return nil }); err != nil {
		return err
	}
	return r.notifier.Register(ctx, sessionID, connectionID)
}

// ProposeChange asks an assistant for a proposal against the current base.
// The draft is not changed; the proposal arrives later through ReceiveProposal.
func (r *Reconciler) ProposeChange(ctx context.Context, sessionID, source, prompt string) (events.SuggestRequested, error) {
	var event events.SuggestRequested
	err := r.observe(ctx, "ProposeChange", func(ctx context.Context) error {
		err := r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
			event = events.NewSuggestRequested(sessionID, d.BlueprintID(), source, prompt, d.BaseVersion().Int(), r.now())
			return nil
		})
		if err != nil {
			return err
		}
		r.publish(ctx, sessionID, []events.DomainEvent{event})
		return nil
	})
	return event, err
}

// EditLocally applies one local edit
func (r *Reconciler) EditLocally(ctx context.Context, sessionID string, op patch.Op) (*EditResult, error) {
	return r.edit(ctx, "EditLocally", sessionID, func(d *drafts.Draft) ([]patch.Op, error) {
		return d.ApplyLocalEdit(op)
	})
}

// Undo reverts the last local edit
func (r *Reconciler) Undo(ctx context.Context, sessionID string) (*EditResult, error) {
	return r.edit(ctx, "Undo", sessionID, func(d *drafts.Draft) ([]patch.Op, error) {
		return d.Undo()
	})
}

// Redo re-applies the last undone edit
func (r *Reconciler) Redo(ctx context.Context, sessionID string) (*EditResult, error) {
	return r.edit(ctx, "Redo", sessionID, func(d *drafts.Draft) ([]patch.Op, error) {
		return d.Redo()
	})
}

func (r *Reconciler) edit(ctx context.Context, operation, sessionID string, fn func(*drafts.Draft) ([]patch.Op, error)) (*EditResult, error) {
	var result *EditResult
	err := r.observe(ctx, operation, func(ctx context.Context) error {
		var ops []patch.Op
		view, err := r.mutate(ctx, sessionID, func(d *drafts.Draft) error {
			var err error
			ops, err = fn(d)
			return err
		})
		if err != nil {
			return err
		}
		result = &EditResult{Ops: ops, View: view}
		return nil
	})
	return result, err
}

// ReceiveProposal reconciles a candidate blueprint from source against the
// session's draft. The candidate document is validated before diffing.
func (r *Reconciler) ReceiveProposal(ctx context.Context, sessionID, source string, baseVersion int, candidate aggregates.Document) (drafts.View, error) {
	var view drafts.View
	err := r.observe(ctx, "ReceiveProposal", func(ctx context.Context) error {
		if source == "" {
			return pkgerrors.NewValidationError("proposal source is required")
		}
		if r.limiter != nil {
			allowed, err := r.limiter.Allow(ctx, source)
			if err != nil {
				return pkgerrors.Wrap(err, "rate limiter")
			}
			if !allowed {
				return pkgerrors.RateLimited(source)
			}
		}

		bp, err := r.validator.Decode(candidate)
		if err != nil {
			return err
		}

		view, err = r.mutate(ctx, sessionID, func(d *drafts.Draft) error {
			_, err := d.ReceiveProposal(bp, valueobjects.Version(baseVersion), source)
			return err
		})
		if err != nil {
			return err
		}

		if r.metrics != nil {
			counts := make(map[conflicts.Kind]int)
			for _, rec := range view.Conflicts {
				counts[rec.Kind]++
			}
			for kind, n := range counts {
				r.metrics.RecordConflicts(ctx, string(kind), n)
			}
		}
		r.logger.Info("Proposal received",
			zap.String("sessionID", sessionID),
			zap.String("source", source),
			zap.String("proposalID", view.ProposalID),
			zap.Int("conflicts", len(view.Conflicts)),
		)
		return nil
	})
	return view, err
}

// Resolve records a resolution for the conflict at path. merged is only
// used with the merged-value resolution.
func (r *Reconciler) Resolve(ctx context.Context, sessionID string, path valueobjects.Path, resolution conflicts.Resolution, merged patch.Payload) (drafts.View, error) {
	var view drafts.View
	err := r.observe(ctx, "Resolve", func(ctx context.Context) error {
		var err error
		view, err = r.mutate(ctx, sessionID, func(d *drafts.Draft) error {
			return d.ResolveConflict(path, resolution, merged)
		})
		return err
	})
	return view, err
}

// Discard drops the pending proposal
func (r *Reconciler) Discard(ctx context.Context, sessionID string) (drafts.View, error) {
	var view drafts.View
	err := r.observe(ctx, "Discard", func(ctx context.Context) error {
		var err error
		view, err = r.mutate(ctx, sessionID, func(d *drafts.Draft) error {
			return d.DiscardProposal()
		})
		return err
	})
	return view, err
}

// Commit merges the pending proposal into a new committed version
func (r *Reconciler) Commit(ctx context.Context, sessionID string) (*CommitOutcome, error) {
	return r.commit(ctx, "Commit", sessionID, (*drafts.Draft).PrepareCommit)
}

// Checkpoint commits the local edits while no proposal is pending
func (r *Reconciler) Checkpoint(ctx context.Context, sessionID string) (*CommitOutcome, error) {
	return r.commit(ctx, "Checkpoint", sessionID, (*drafts.Draft).PrepareCheckpoint)
}

// commit prepares under the session lock, persists without holding it and
// installs under the lock again. A draft changed in between rejects the
// install and the saga deletes the persisted version.
func (r *Reconciler) commit(ctx context.Context, operation, sessionID string, prepare func(*drafts.Draft) (*drafts.CommitResult, error)) (*CommitOutcome, error) {
	var outcome *CommitOutcome
	err := r.observe(ctx, operation, func(ctx context.Context) error {
		var result *drafts.CommitResult
		err := r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
			var err error
			result, err = prepare(d)
			return err
		})
		if err != nil {
			return err
		}

		var pending []events.DomainEvent
		var view drafts.View
		record, err := r.commits.Run(ctx, result, func(ctx context.Context) error {
			return r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
				if err := d.ApplyCommit(result); err != nil {
					return err
				}
				pending = d.GetUncommittedEvents()
				d.MarkEventsAsCommitted()
				view = d.View()
				return nil
			})
		})
		if err != nil {
			return err
		}

		r.publish(ctx, sessionID, pending)
		outcome = &CommitOutcome{Version: record, View: view}
		return nil
	})
	return outcome, err
}

// Preview runs the would-be-committed state through the preview runner.
// The draft is never locked while the runner works. The report is attached
// only if the draft is still in the state the preview was taken from; a
// cancelled ctx attaches nothing.
func (r *Reconciler) Preview(ctx context.Context, sessionID string) (*PreviewOutcome, error) {
	var outcome *PreviewOutcome
	err := r.observe(ctx, "Preview", func(ctx context.Context) error {
		if r.runner == nil {
			return pkgerrors.NewUnavailableError("preview runner")
		}

		var req *drafts.PreviewRequest
		err := r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
			var err error
			req, err = d.PreparePreview()
			return err
		})
		if err != nil {
			return err
		}

		runCtx := ctx
		if timeout := r.sessions.Config().PreviewTimeout; timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		report, err := r.runner.Run(runCtx, req.Blueprint.Clone())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return pkgerrors.SandboxAdvisory([]string{err.Error()}).WithCause(err)
		}
		if report == nil {
			report = &ports.PreviewReport{OK: true}
		}

		outcome = &PreviewOutcome{Report: *report}
		err = r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
			outcome.Advisory, outcome.Attached = d.AttachAdvisory(req, report.OK, report.Errors)
			return nil
		})
		if err != nil {
			return err
		}
		outcome.Stale = !outcome.Attached

		if r.metrics != nil {
			r.metrics.RecordPreview(ctx, report.OK, outcome.Stale)
		}
		if !report.OK {
			r.publish(ctx, sessionID, []events.DomainEvent{events.NewSandboxError(
				sessionID, req.BaseVersion.Int(), req.Revision, outcome.Stale, report.Errors, r.now(),
			)})
		}
		return nil
	})
	return outcome, err
}

// mutate runs fn under the session lock and publishes the events it raised
// once the lock is released
func (r *Reconciler) mutate(ctx context.Context, sessionID string, fn func(*drafts.Draft) error) (drafts.View, error) {
	var pending []events.DomainEvent
	var view drafts.View
	err := r.sessions.WithSession(sessionID, func(d *drafts.Draft) error {
		if err := fn(d); err != nil {
			return err
		}
		pending = d.GetUncommittedEvents()
		d.MarkEventsAsCommitted()
		view = d.View()
		return nil
	})
	if err != nil {
		return drafts.View{}, err
	}
	r.publish(ctx, sessionID, pending)
	return view, nil
}

// publish delivers events best effort. Draft operations have already
// succeeded, so delivery failures are logged and never returned.
func (r *Reconciler) publish(ctx context.Context, sessionID string, pending []events.DomainEvent) {
	if len(pending) == 0 {
		return
	}
	if r.bus != nil {
		if err := r.bus.PublishBatch(ctx, pending); err != nil {
			r.logger.Warn("Failed to publish events",
				zap.String("sessionID", sessionID),
				zap.Int("count", len(pending)),
				zap.Error(err),
			)
		}
	}
	if r.notifier != nil {
		for _, event := range pending {
			if err := r.notifier.Notify(ctx, sessionID, event); err != nil {
				r.logger.Debug("Failed to notify editors",
					zap.String("sessionID", sessionID),
					zap.String("eventType", event.GetEventType()),
					zap.Error(err),
				)
			}
		}
	}
}

// observe traces and times an operation
func (r *Reconciler) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := r.now()
	var err error
	if r.tracer != nil {
		err = r.tracer.TraceFunction(ctx, operation, fn)
	} else {
		err = fn(ctx)
	}
	if r.metrics != nil {
		r.metrics.RecordOperation(ctx, operation, r.now().Sub(start), err)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Debug("Operation failed", zap.String("operation", operation), zap.Error(err))
	}
	return err
}
