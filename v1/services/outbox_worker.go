package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chitbox-dev/chitfund-portal/monitoring"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stuckJobThreshold is how long a job may stay in processing before it is reclaimed
const stuckJobThreshold = 5 * time.Minute

// OutboxWorker delivers outbox jobs through an EventPublisher
type OutboxWorker struct {
	db           *gorm.DB
	publisher    EventPublisher
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(db *gorm.DB, publisher EventPublisher, pollInterval time.Duration, batchSize int) *OutboxWorker {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxWorker{
		db:           db,
		publisher:    publisher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Start runs the worker until ctx is cancelled
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "pollInterval", w.pollInterval, "batchSize", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker stopped")
			return
		case <-ticker.C:
			w.processJobs(ctx)
		}
	}
}

// claimJobs marks a batch of due jobs as processing and returns them
func (w *OutboxWorker) claimJobs(ctx context.Context) ([]models.OutboxJob, error) {
	now := w.now()
	db := w.db.WithContext(ctx)

	// Reclaim jobs left in processing by a crashed worker
	if err := db.Model(&models.OutboxJob{}).
		Where("status = ?", models.OutboxJobStatusProcessing).
		Where("updated_at < ?", now.Add(-stuckJobThreshold)).
		Updates(map[string]interface{}{"status": models.OutboxJobStatusPending, "updated_at": now}).Error; err != nil {
		slog.Warn("Failed to clean up stuck processing jobs", "error", err)
	}

	var jobs []models.OutboxJob
	err := db.Transaction(func(tx *gorm.DB) error {
		query := tx.Where("status = ?", models.OutboxJobStatusPending).
			Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
			Order("created_at ASC").
			Limit(w.batchSize)
		// SQLite has no row locks; it serialises writers instead
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		jobIDs := make([]string, len(jobs))
		for i := range jobs {
			jobIDs[i] = jobs[i].JobID
		}
		return tx.Model(&models.OutboxJob{}).
			Where("job_id IN ?", jobIDs).
			Updates(map[string]interface{}{"status": models.OutboxJobStatusProcessing, "updated_at": now}).Error
	})
	return jobs, err
}

// processJobs delivers one batch of due jobs
func (w *OutboxWorker) processJobs(ctx context.Context) {
	jobs, err := w.claimJobs(ctx)
	if err != nil {
		slog.Error("Failed to fetch pending outbox jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	slog.Debug("Processing outbox jobs", "count", len(jobs))
	for i := range jobs {
		w.processJob(ctx, &jobs[i])
	}
}

// processJob publishes a single job and records the outcome
func (w *OutboxWorker) processJob(ctx context.Context, job *models.OutboxJob) {
	now := w.now()

	var err error
	if job.Payload == "" {
		err = fmt.Errorf("job %s has an empty payload", job.JobID)
	} else {
		err = w.publisher.Publish(ctx, job)
	}

	newRetryCount := job.RetryCount + 1
	updates := map[string]interface{}{
		"processed_at": now,
		"retry_count":  newRetryCount,
		"updated_at":   now,
	}

	outcome := "completed"
	if err != nil {
		errorMsg := err.Error()
		updates["error"] = &errorMsg

		// newRetryCount counts failed deliveries including this one, so a job gets
		// MaxRetries+1 deliveries before it is marked failed
		if newRetryCount > job.MaxRetries {
			outcome = "failed"
			updates["status"] = models.OutboxJobStatusFailed
			updates["next_retry_at"] = nil
			slog.Error("Outbox job failed after max retries",
				"jobID", job.JobID,
				"jobType", job.JobType,
				"retryCount", newRetryCount,
				"maxRetries", job.MaxRetries,
				"error", err)
		} else {
			outcome = "retry"
			nextRetryAt := now.Add(time.Minute * time.Duration(1<<job.RetryCount))
			updates["next_retry_at"] = &nextRetryAt
			updates["status"] = models.OutboxJobStatusPending
			slog.Warn("Outbox job failed, will retry",
				"jobID", job.JobID,
				"jobType", job.JobType,
				"retryCount", newRetryCount,
				"error", err,
				"nextRetryAt", nextRetryAt)
		}
	} else {
		updates["status"] = models.OutboxJobStatusCompleted
		updates["error"] = nil
		updates["next_retry_at"] = nil
		slog.Info("Outbox job delivered", "jobID", job.JobID, "jobType", job.JobType)
	}
	monitoring.RecordOutboxJob(string(job.JobType), outcome)

	if updateErr := w.db.WithContext(ctx).Model(&models.OutboxJob{}).
		Where("job_id = ?", job.JobID).
		Updates(updates).Error; updateErr != nil {
		slog.Error("Failed to update outbox job status", "jobID", job.JobID, "error", updateErr)
	}
}
