package main

import (
	"context"
	"encoding/json"
	"fmt"

	"blueprint-drafts/application/ports"
	domainevents "blueprint-drafts/domain/events"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// runRequestedDetail is the EventBridge detail of a preview request
type runRequestedDetail struct {
	SessionID   string `json:"sessionId"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// dispatchEvent hands a supported EventBridge event to its listener.
// Unsupported detail types are acknowledged and dropped.
func dispatchEvent(ctx context.Context, handler ports.EventHandler, evt events.CloudWatchEvent, logger *zap.Logger) error {
	if evt.DetailType != domainevents.TypeRunRequested {
		logger.Debug("Ignoring EventBridge event", zap.String("detailType", evt.DetailType), zap.String("source", evt.Source))
		return nil
	}

	var detail runRequestedDetail
	if err := json.Unmarshal(evt.Detail, &detail); err != nil {
		return fmt.Errorf("malformed %s detail: %w", evt.DetailType, err)
	}
	if detail.SessionID == "" {
		return fmt.Errorf("%s detail has no sessionId", evt.DetailType)
	}

	return handler.Handle(ctx, domainevents.NewRunRequested(detail.SessionID, detail.RequestedBy, evt.Time))
}
