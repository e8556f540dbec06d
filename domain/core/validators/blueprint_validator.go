package validators

import (
	"fmt"
	"strings"

	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// BlueprintValidator validates blueprints at the boundary where untyped input
// becomes the structural model
type BlueprintValidator struct {
	validate *validator.Validate
	config   *config.DomainConfig
}

// NewBlueprintValidator creates a new blueprint validator with the given rules
func NewBlueprintValidator(cfg *config.DomainConfig) *BlueprintValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &BlueprintValidator{
		validate: validator.New(),
		config:   cfg,
	}
}

// Decode validates a wire document and builds the blueprint it describes.
// Malformed structure fails with InvalidPatchPath naming the offending element.
func (v *BlueprintValidator) Decode(doc aggregates.Document) (*aggregates.Blueprint, error) {
	if err := v.validate.Struct(doc); err != nil {
		return nil, errors.InvalidPatchPath(documentPath(err), err.Error())
	}
	bp, err := aggregates.FromDocument(doc)
	if err != nil {
		if errors.GetDomainError(err) != nil {
			return nil, err
		}
		return nil, errors.InvalidPatchPath("", err.Error())
	}
	if err := v.Validate(bp); err != nil {
		return nil, err
	}
	return bp, nil
}

// Validate checks graph invariants and configured limits
func (v *BlueprintValidator) Validate(bp *aggregates.Blueprint) error {
	if err := bp.Validate(); err != nil {
		return err
	}

	validationErrors := errors.NewValidationErrors()
	if bp.NodeCount() > v.config.MaxNodesPerBlueprint {
		validationErrors.Add("nodes", fmt.Sprintf("blueprint has %d nodes, limit is %d", bp.NodeCount(), v.config.MaxNodesPerBlueprint))
	}
	if bp.EdgeCount() > v.config.MaxEdgesPerBlueprint {
		validationErrors.Add("edges", fmt.Sprintf("blueprint has %d edges, limit is %d", bp.EdgeCount(), v.config.MaxEdgesPerBlueprint))
	}
	if !v.config.AllowSelfConnections {
		for _, e := range bp.Edges() {
			if e.Source().Equals(e.Target()) {
				validationErrors.Add("edges", fmt.Sprintf("edge %s connects a node to itself", e.Key()))
			}
		}
	}

	if validationErrors.HasErrors() {
		return validationErrors
	}
	return nil
}

// documentPath turns the first validator field error into a rough address
// such as "Nodes[2].Type"
func documentPath(err error) string {
	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		return strings.TrimPrefix(fieldErrors[0].Namespace(), "Document.")
	}
	return ""
}
