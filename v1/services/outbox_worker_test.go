package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

// recordingPublisher records published jobs and fails while err is set
type recordingPublisher struct {
	mu       sync.Mutex
	jobs     []string
	attempts int
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, job *models.OutboxJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job.JobID)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.jobs...)
}

func enqueueTestJob(t *testing.T, db *gorm.DB) *models.OutboxJob {
	t.Helper()
	job, err := enqueueOutbox(db, models.OutboxJobTypeReportReviewed, "sch_test", map[string]string{"reportId": "rpt_1"})
	require.NoError(t, err)
	return job
}

func loadJob(t *testing.T, db *gorm.DB, jobID string) models.OutboxJob {
	t.Helper()
	var job models.OutboxJob
	require.NoError(t, db.First(&job, "job_id = ?", jobID).Error)
	return job
}

func TestOutboxWorker_ProcessJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliversPendingJobs", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		job := enqueueTestJob(t, db)

		worker.processJobs(ctx)

		assert.Equal(t, []string{job.JobID}, publisher.published())
		stored := loadJob(t, db, job.JobID)
		assert.Equal(t, models.OutboxJobStatusCompleted, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.NotNil(t, stored.ProcessedAt)
	})

	t.Run("BacksOffOnFailure", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{err: errors.New("stream unavailable")}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		now := time.Now()
		worker.now = func() time.Time { return now }
		job := enqueueTestJob(t, db)

		worker.processJobs(ctx)

		stored := loadJob(t, db, job.JobID)
		assert.Equal(t, models.OutboxJobStatusPending, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		require.NotNil(t, stored.NextRetryAt)
		assert.WithinDuration(t, now.Add(time.Minute), *stored.NextRetryAt, time.Second)
		require.NotNil(t, stored.Error)
		assert.Contains(t, *stored.Error, "stream unavailable")

		worker.processJobs(ctx)
		assert.Equal(t, 1, loadJob(t, db, job.JobID).RetryCount, "job is not due before next_retry_at")
	})

	t.Run("FailsAfterMaxRetries", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{err: errors.New("stream unavailable")}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		job := enqueueTestJob(t, db)
		require.NoError(t, db.Model(&models.OutboxJob{}).Where("job_id = ?", job.JobID).
			Update("retry_count", job.MaxRetries).Error)

		worker.processJobs(ctx)

		stored := loadJob(t, db, job.JobID)
		assert.Equal(t, models.OutboxJobStatusFailed, stored.Status)
		assert.Nil(t, stored.NextRetryAt)
	})

	t.Run("DeliversMaxRetriesPlusOneTimes", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{err: errors.New("stream unavailable")}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		now := time.Now()
		worker.now = func() time.Time { return now }
		job := enqueueTestJob(t, db)

		for i := 0; i < job.MaxRetries+3; i++ {
			worker.processJobs(ctx)
			now = now.Add(48 * time.Hour)
		}

		stored := loadJob(t, db, job.JobID)
		assert.Equal(t, models.OutboxJobStatusFailed, stored.Status)
		assert.Equal(t, job.MaxRetries+1, publisher.attempts)
		assert.Equal(t, job.MaxRetries+1, stored.RetryCount)
	})

	t.Run("ReclaimsStuckJobs", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		job := enqueueTestJob(t, db)
		require.NoError(t, db.Model(&models.OutboxJob{}).Where("job_id = ?", job.JobID).
			Updates(map[string]interface{}{
				"status":     models.OutboxJobStatusProcessing,
				"updated_at": time.Now().Add(-10 * time.Minute),
			}).Error)

		worker.processJobs(ctx)

		assert.Equal(t, models.OutboxJobStatusCompleted, loadJob(t, db, job.JobID).Status)
	})

	t.Run("LeavesFreshProcessingJobs", func(t *testing.T) {
		db := SetupSQLiteTestDB(t)
		publisher := &recordingPublisher{}
		worker := NewOutboxWorker(db, publisher, time.Second, 10)
		job := enqueueTestJob(t, db)
		require.NoError(t, db.Model(&models.OutboxJob{}).Where("job_id = ?", job.JobID).
			Update("status", models.OutboxJobStatusProcessing).Error)

		worker.processJobs(ctx)

		assert.Empty(t, publisher.published())
		assert.Equal(t, models.OutboxJobStatusProcessing, loadJob(t, db, job.JobID).Status)
	})
}

func TestOutboxWorker_StartStops(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	// the database pool goroutines outlive the test body and are closed by t.Cleanup
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	publisher := &recordingPublisher{}
	worker := NewOutboxWorker(db, publisher, 10*time.Millisecond, 10)
	job := enqueueTestJob(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, job.JobID, publisher.published()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestLogPublisher_Publish(t *testing.T) {
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), &models.OutboxJob{JobID: "job_1"}))
}
