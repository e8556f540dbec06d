package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"blueprint-drafts/infrastructure/config"
	"blueprint-drafts/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	// chiLambda wraps the Chi router for AWS Lambda integration
	chiLambda *chiadapter.ChiLambdaV2

	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiRouter, ok := container.Router.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	container.Logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(coldStartTime)))
}

// envelope holds the fields used to tell invocation sources apart
type envelope struct {
	DetailType     string          `json:"detail-type"`
	RequestContext json.RawMessage `json:"requestContext"`
}

// Handler serves API Gateway HTTP requests and EventBridge events from the
// same function
func Handler(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var probe envelope
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("unrecognized invocation payload: %w", err)
	}

	if probe.DetailType != "" {
		var evt events.CloudWatchEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("malformed EventBridge event: %w", err)
		}
		return nil, dispatchEvent(ctx, container.Listener, evt, container.Logger)
	}

	var req events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed HTTP request: %w", err)
	}
	return handleHTTP(ctx, req)
}

func handleHTTP(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Int("status_code", resp.StatusCode),
		)
	}
	return resp, err
}

// main is the entry point for the Lambda function
func main() {
	lambda.Start(Handler)
}
