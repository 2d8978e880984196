package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
)

const chitScoreKeyPrefix = "chit_score:"

// ScoreCache stores computed chit scores. The redis client satisfies it.
type ScoreCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ChitScoreService computes subscriber chit scores from accepted monthly reports
type ChitScoreService struct {
	db    *gorm.DB
	cache ScoreCache
	ttl   time.Duration
}

// NewChitScoreService creates a new chit score service. cache may be nil.
func NewChitScoreService(db *gorm.DB, cache ScoreCache, ttl time.Duration) *ChitScoreService {
	return &ChitScoreService{db: db, cache: cache, ttl: ttl}
}

// ScoreBand maps a score to its band
func ScoreBand(score int) string {
	switch {
	case score >= 750:
		return models.ScoreBandExcellent
	case score >= 650:
		return models.ScoreBandGood
	case score >= 550:
		return models.ScoreBandFair
	default:
		return models.ScoreBandPoor
	}
}

// GetChitScore returns the score summary of a user, served from the cache when possible
func (s *ChitScoreService) GetChitScore(ctx context.Context, userID string) (*models.ChitScore, error) {
	key := chitScoreKeyPrefix + userID
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Chit score cache read failed", "userID", userID, "error", err)
		} else if ok {
			var cached models.ChitScore
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			slog.Warn("Discarding unreadable cached chit score", "userID", userID)
		}
	}

	score, err := s.compute(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(score); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				slog.Warn("Chit score cache write failed", "userID", userID, "error", err)
			}
		}
	}
	return score, nil
}

func (s *ChitScoreService) compute(ctx context.Context, userID string) (*models.ChitScore, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}

	var enrollments []models.Enrollment
	if err := db.Where("subscriber_id = ?", userID).Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}

	result := &models.ChitScore{
		UserID:      userID,
		UCFSIN:      user.UCFSINValue(),
		Enrollments: len(enrollments),
	}

	for _, e := range enrollments {
		var reports []models.MonthlyReport
		if err := db.Where("scheme_id = ? AND status = ?", e.SchemeID, models.ReportStatusAccepted).
			Find(&reports).Error; err != nil {
			return nil, fmt.Errorf("failed to load reports: %w", err)
		}
		for _, r := range reports {
			result.AcceptedReports++
			if r.DefaulterUCFSINs.Contains(e.UCFSIN) {
				result.DefaultedMonths++
			}
		}
	}
	result.OnTimeMonths = result.AcceptedReports - result.DefaultedMonths

	if result.AcceptedReports == 0 {
		result.Band = models.ScoreBandInsufficientHistory
		return result, nil
	}

	ratio := float64(result.OnTimeMonths) / float64(result.AcceptedReports)
	result.OnTimeRatio = math.Round(ratio*10000) / 10000
	result.Score = 300 + int(math.Round(600*ratio))
	result.Band = ScoreBand(result.Score)
	return result, nil
}

// Invalidate drops cached scores of the given users
func (s *ChitScoreService) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = chitScoreKeyPrefix + id
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("Chit score cache invalidation failed", "users", len(userIDs), "error", err)
	}
}
