package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"blueprint-drafts/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type pingCommand struct {
	Name string
}

func (c pingCommand) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type otherCommand struct{}

func (otherCommand) Validate() error { return nil }

type operationRecorder struct {
	operations []string
	errs       []error
}

func (r *operationRecorder) RecordOperation(ctx context.Context, operation string, d time.Duration, err error) {
	r.operations = append(r.operations, operation)
	r.errs = append(r.errs, err)
}

func (r *operationRecorder) RecordConflicts(ctx context.Context, kind string, count int) {}

func (r *operationRecorder) RecordPreview(ctx context.Context, ok, stale bool) {}

func TestCommandBusDispatch(t *testing.T) {
	b := NewCommandBus()
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		return "pong:" + cmd.(pingCommand).Name, nil
	})))

	result, err := b.Send(context.Background(), pingCommand{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "pong:a", result)

	_, err = b.Send(context.Background(), pingCommand{})
	assert.EqualError(t, err, "name is required")

	_, err = b.Send(context.Background(), otherCommand{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	err = b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, nil
	}))
	assert.Error(t, err)
}

func TestPipelineOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CommandHandler) CommandHandler {
			return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
				order = append(order, name)
				return next.Handle(ctx, cmd)
			})
		}
	}

	b := NewCommandBus(tag("outer"), tag("inner"))
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	})))

	_, err := b.Send(context.Background(), pingCommand{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestMetricsAndLoggingMiddleware(t *testing.T) {
	recorder := &operationRecorder{}
	boom := errors.New("boom")
	b := NewCommandBus(LoggingMiddleware(zap.NewNop()), MetricsMiddleware(recorder), ValidationMiddleware())
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		if cmd.(pingCommand).Name == "fail" {
			return nil, boom
		}
		return "ok", nil
	})))

	_, err := b.Send(context.Background(), pingCommand{Name: "ok"})
	require.NoError(t, err)
	_, err = b.Send(context.Background(), pingCommand{Name: "fail"})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"command.pingCommand", "command.pingCommand"}, recorder.operations)
	assert.NoError(t, recorder.errs[0])
	assert.ErrorIs(t, recorder.errs[1], boom)
}

func TestLoggingMiddlewareCarriesRequestMetadata(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := NewCommandBus(LoggingMiddleware(zap.New(core)))
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, errors.New("boom")
	})))

	ctx := common.WithSessionID(common.WithRequestID(context.Background(), "req-1"), "sess-1")
	_, err := b.Send(ctx, pingCommand{Name: "a"})
	require.Error(t, err)

	entries := logs.FilterMessage("Command failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["requestID"])
	assert.Equal(t, "sess-1", fields["sessionID"])
	assert.Equal(t, "boom", fields["error"])
}
