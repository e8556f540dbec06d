package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"blueprint-drafts/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// PostToConnectionAPI is the subset of the API Gateway management client
// the notifier uses
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Message is the frame pushed to editors
type Message struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId"`
	Timestamp int64              `json:"timestamp"`
	Data      events.DomainEvent `json:"data"`
}

// Notifier pushes session events to the websocket connections registered
// for the session. Connections API Gateway reports as gone are dropped.
type Notifier struct {
	client PostToConnectionAPI
	logger *zap.Logger

	mu          sync.RWMutex
	connections map[string]map[string]struct{} // sessionID -> connection ids
}

// NewNotifier creates a new websocket notifier
func NewNotifier(client PostToConnectionAPI, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		client:      client,
		logger:      logger,
		connections: make(map[string]map[string]struct{}),
	}
}

// NewClient builds a management API client for a websocket endpoint such as
// abc123.execute-api.us-west-2.amazonaws.com/prod
func NewClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", endpoint))
	})
}

// Register attaches a connection to a session
func (n *Notifier) Register(ctx context.Context, sessionID, connectionID string) error {
	if sessionID == "" || connectionID == "" {
		return fmt.Errorf("session and connection ids are required")
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	conns, ok := n.connections[sessionID]
	if !ok {
		conns = make(map[string]struct{})
		n.connections[sessionID] = conns
	}
	conns[connectionID] = struct{}{}
	return nil
}

// Unregister detaches a connection from a session
func (n *Notifier) Unregister(ctx context.Context, sessionID, connectionID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	conns := n.connections[sessionID]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(n.connections, sessionID)
	}
	return nil
}

// Connections returns the connections registered for a session, sorted
func (n *Notifier) Connections(sessionID string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ids := make([]string, 0, len(n.connections[sessionID]))
	for id := range n.connections[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Notify sends event to every connection of the session
func (n *Notifier) Notify(ctx context.Context, sessionID string, event events.DomainEvent) error {
	targets := n.Connections(sessionID)
	if len(targets) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{
		Type:      event.GetEventType(),
		SessionID: sessionID,
		Timestamp: event.GetTimestamp().UnixMilli(),
		Data:      event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal websocket message: %w", err)
	}

	var errs []error
	for _, connectionID := range targets {
		if err := n.send(ctx, connectionID, payload); err != nil {
			var goneErr *apigwTypes.GoneException
			if errors.As(err, &goneErr) {
				n.logger.Debug("Connection is gone, removing",
					zap.String("sessionID", sessionID),
					zap.String("connectionID", connectionID),
				)
				_ = n.Unregister(ctx, sessionID, connectionID)
				continue
			}
			errs = append(errs, fmt.Errorf("connection %s: %w", connectionID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, connectionID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := n.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	return err
}
