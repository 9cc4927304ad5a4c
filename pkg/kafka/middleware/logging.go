package kafka_middleware

import (
	"context"
	"time"

	"carecal/pkg/kafka"
	"carecal/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		logMessage(log, "Published message", "Failed to publish message", msg, time.Since(start), err)
		return err
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		logMessage(log, "Processed message", "Failed to process message", msg, time.Since(start), err)
		return err
	}
}

func logMessage(log *logger.Logger, ok, failed string, msg kafka.Message, duration time.Duration, err error) {
	fields := []any{
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", msg.Key,
		"event_id", msg.GetEventID(),
		"event_type", msg.GetEventType(),
		"duration", duration,
	}
	if err != nil {
		log.Error(failed, append(fields, "error", err)...)
		return
	}
	log.Debug(ok, fields...)
}
