package queries

import (
	"fmt"

	pkgerrors "blueprint-drafts/pkg/errors"
	"blueprint-drafts/pkg/utils"
)

// GetViewQuery returns the read-only view of a session's draft
type GetViewQuery struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}

// Validate validates the query
func (q GetViewQuery) Validate() error { return utils.ValidateStruct(q) }

// GetAdvisoriesQuery returns the preview advisories attached to a draft
type GetAdvisoriesQuery struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}

// Validate validates the query
func (q GetAdvisoriesQuery) Validate() error { return utils.ValidateStruct(q) }

// ListSessionsQuery lists the open sessions
type ListSessionsQuery struct {
	BlueprintID string `json:"blueprintId,omitempty" validate:"max=128"`
}

// Validate validates the query
func (q ListSessionsQuery) Validate() error { return utils.ValidateStruct(q) }

// ListVersionsQuery lists the committed versions of a blueprint, newest first
type ListVersionsQuery struct {
	BlueprintID string `json:"blueprintId" validate:"required,max=128"`
	Page        int    `json:"page" validate:"min=1"`
	PageSize    int    `json:"pageSize" validate:"min=1,max=100"`
}

// Validate validates the query
func (q ListVersionsQuery) Validate() error { return utils.ValidateStruct(q) }

// GetVersionQuery returns one committed snapshot
type GetVersionQuery struct {
	BlueprintID string `json:"blueprintId" validate:"required,max=128"`
	Version     int    `json:"version" validate:"min=1"`
}

// Validate validates the query
func (q GetVersionQuery) Validate() error { return utils.ValidateStruct(q) }

// CacheKey implements bus.Cacheable; committed versions never change
func (q GetVersionQuery) CacheKey() string {
	return fmt.Sprintf("%s@%d", q.BlueprintID, q.Version)
}

// CompareVersionsQuery compares two committed versions of a blueprint
type CompareVersionsQuery struct {
	BlueprintID string `json:"blueprintId" validate:"required,max=128"`
	From        int    `json:"from" validate:"min=1"`
	To          int    `json:"to" validate:"min=1"`
}

// Validate validates the query
func (q CompareVersionsQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return err
	}
	if q.From == q.To {
		return pkgerrors.NewValidationError("from and to must differ")
	}
	return nil
}

// CacheKey implements bus.Cacheable
func (q CompareVersionsQuery) CacheKey() string {
	return fmt.Sprintf("%s@%d..%d", q.BlueprintID, q.From, q.To)
}
