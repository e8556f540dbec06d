package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"blueprint-drafts/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu    sync.Mutex
	sent  map[string][][]byte
	fails map[string]error
}

func (f *fakeGateway) PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.ConnectionId)
	if err := f.fails[id]; err != nil {
		return nil, err
	}
	if f.sent == nil {
		f.sent = map[string][][]byte{}
	}
	f.sent[id] = append(f.sent[id], in.Data)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func TestNotifierPushesToSessionConnections(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	n := NewNotifier(gw, nil)

	require.NoError(t, n.Register(ctx, "s-1", "c-1"))
	require.NoError(t, n.Register(ctx, "s-1", "c-2"))
	require.NoError(t, n.Register(ctx, "s-2", "c-3"))

	event := events.NewRunRequested("s-1", "frosty", time.UnixMilli(1700000000000))
	require.NoError(t, n.Notify(ctx, "s-1", event))

	assert.Len(t, gw.sent["c-1"], 1)
	assert.Len(t, gw.sent["c-2"], 1)
	assert.Empty(t, gw.sent["c-3"])

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(gw.sent["c-1"][0], &msg))
	assert.Equal(t, events.TypeRunRequested, msg["type"])
	assert.Equal(t, "s-1", msg["sessionId"])
	assert.Equal(t, float64(1700000000000), msg["timestamp"])
}

func TestNotifierDropsGoneConnections(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("internal failure")
	gw := &fakeGateway{fails: map[string]error{
		"gone":   &apigwTypes.GoneException{Message: aws.String("gone")},
		"broken": boom,
	}}
	n := NewNotifier(gw, nil)
	for _, id := range []string{"gone", "broken", "ok"} {
		require.NoError(t, n.Register(ctx, "s-1", id))
	}

	err := n.Notify(ctx, "s-1", events.NewRunRequested("s-1", "frosty", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"broken", "ok"}, n.Connections("s-1"))
	assert.Len(t, gw.sent["ok"], 1)
}

func TestNotifierRegistration(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier(&fakeGateway{}, nil)

	assert.Error(t, n.Register(ctx, "", "c-1"))
	require.NoError(t, n.Register(ctx, "s-1", "c-1"))
	require.NoError(t, n.Unregister(ctx, "s-1", "c-1"))
	assert.Empty(t, n.Connections("s-1"))
	assert.NoError(t, n.Notify(ctx, "s-1", events.NewRunRequested("s-1", "frosty", time.Now())))
}
