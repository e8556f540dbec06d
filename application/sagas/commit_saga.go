package sagas

import (
	"context"
	"fmt"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/drafts"
	"blueprint-drafts/domain/versioning"
	pkgerrors "blueprint-drafts/pkg/errors"

	"go.uber.org/zap"
)

// CommitSaga persists a prepared commit and then installs it on the draft.
// If installing fails, the persisted version is deleted again so the store
// never holds a version no draft advanced to.
type CommitSaga struct {
	store      ports.SnapshotStore
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewCommitSaga creates a new commit saga
func NewCommitSaga(store ports.SnapshotStore, logger *zap.Logger) *CommitSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommitSaga{
		store:      store,
		logger:     logger,
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
		now:        time.Now,
	}
}

// WithRetry overrides how often a failed save is retried
func (c *CommitSaga) WithRetry(maxRetries int, delay time.Duration) *CommitSaga {
	c.maxRetries = maxRetries
	c.retryDelay = delay
	return c
}

// Run executes the saga for result. install applies the result to the
// owning draft and must be idempotent on failure.
func (c *CommitSaga) Run(ctx context.Context, result *drafts.CommitResult, install func(ctx context.Context) error) (*versioning.BlueprintVersion, error) {
	if result == nil {
		return nil, pkgerrors.NewValidationError("commit result is required")
	}

	var record *versioning.BlueprintVersion
	persisted := false

	saga := NewSaga("commit", c.logger).
		AddStep(SagaStep{
			Name: "record-version",
			Execute: func(ctx context.Context) error {
				var err error
				record, err = versioning.NewBlueprintVersion(result.Blueprint, result.Version, result.Applied, result.ProposalID, c.now())
				return err
			},
		}).
		AddStep(SagaStep{
			Name: "persist-snapshot",
			Execute: func(ctx context.Context) error {
				if err := c.store.Save(ctx, &ports.Snapshot{Version: record, Blueprint: result.Blueprint}); err != nil {
					return err
				}
				persisted = true
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if !persisted {
					return nil
				}
				return c.store.Delete(ctx, record.BlueprintID, record.Version)
			},
			MaxRetries: c.maxRetries,
			RetryDelay: c.retryDelay,
			// Domain errors such as VersionExists are final
			Retryable: func(err error) bool { return pkgerrors.GetDomainError(err) == nil },
		}).
		AddStep(SagaStep{
			Name:    "install-draft",
			Execute: install,
		})

	if err := saga.Execute(ctx); err != nil {
		if domainErr := pkgerrors.GetDomainError(err); domainErr != nil {
			return nil, fmt.Errorf("commit %s@%d: %w", result.BlueprintID, result.Version.Int(), domainErr)
		}
		return nil, pkgerrors.Wrapf(err, "commit %s@%d", result.BlueprintID, result.Version.Int())
	}

	c.logger.Info("Blueprint version committed",
		zap.String("blueprintID", record.BlueprintID),
		zap.Int("version", record.Version),
		zap.String("createdBy", record.CreatedBy),
		zap.Int("changes", len(record.Changes)),
	)
	return record, nil
}
