package services

import (
	"encoding/json"
	"fmt"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
)

// defaultMaxRetries is the delivery attempt budget of an outbox job
const defaultMaxRetries = 5

// enqueueOutbox writes an outbox job inside the caller's transaction
func enqueueOutbox(tx *gorm.DB, jobType models.OutboxJobType, aggregateID string, payload interface{}) (*models.OutboxJob, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}

	job := &models.OutboxJob{
		JobID:       newID(prefixJob),
		JobType:     jobType,
		AggregateID: aggregateID,
		Payload:     string(body),
		Status:      models.OutboxJobStatusPending,
		MaxRetries:  defaultMaxRetries,
	}
	if err := tx.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create outbox job: %w", err)
	}
	return job, nil
}
