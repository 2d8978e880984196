package services

import (
	"context"
	"log/slog"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
)

// EventPublisher delivers outbox events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, job *models.OutboxJob) error
}

// StreamClient is the part of the redis client used for event streams
type StreamClient interface {
	PublishEvent(ctx context.Context, streamName string, data map[string]interface{}) (string, error)
}

// RedisStreamPublisher appends outbox events to a redis stream
type RedisStreamPublisher struct {
	client StreamClient
	stream string
}

// NewRedisStreamPublisher creates a publisher writing to the given stream
func NewRedisStreamPublisher(client StreamClient, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream}
}

// Publish adds the job to the stream with XADD
func (p *RedisStreamPublisher) Publish(ctx context.Context, job *models.OutboxJob) error {
	id, err := p.client.PublishEvent(ctx, p.stream, map[string]interface{}{
		"jobId":       job.JobID,
		"type":        string(job.JobType),
		"aggregateId": job.AggregateID,
		"payload":     job.Payload,
	})
	if err != nil {
		return err
	}
	slog.Debug("Event published", "stream", p.stream, "messageID", id, "jobID", job.JobID)
	return nil
}

// LogPublisher writes events to the structured log. Used when redis is disabled.
type LogPublisher struct{}

// Publish logs the event
func (LogPublisher) Publish(_ context.Context, job *models.OutboxJob) error {
	slog.Info("Outbox event",
		"jobID", job.JobID,
		"type", job.JobType,
		"aggregateID", job.AggregateID,
		"payloadBytes", len(job.Payload))
	return nil
}
