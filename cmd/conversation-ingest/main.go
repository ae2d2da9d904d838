// Package main is the Lambda worker that turns completed chat turns into memories.
// It is subscribed to conversation.turn_completed events on the service's EventBridge bus.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"unimem/infrastructure/config"
	"unimem/infrastructure/di"
	"unimem/interfaces/worker"
)

var handler *worker.TurnCompletedHandler

func init() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}
	handler = worker.NewTurnCompletedHandler(container.CommandBus, container.Lock, container.Logger)
	container.Logger.Info("Conversation ingest worker initialized",
		zap.String("controlTable", cfg.ControlTable),
	)
}

func main() {
	lambda.Start(handler.Handle)
}
