package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/monitoring"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkflowEngine drives the scheme approval state machine. Every action is
// recorded as a WorkflowTransition keyed by an idempotency key.
type WorkflowEngine struct {
	db      *gorm.DB
	catalog *config.Catalog
	certs   *CertificateService
	now     func() time.Time
}

// NewWorkflowEngine creates a new workflow engine
func NewWorkflowEngine(db *gorm.DB, catalog *config.Catalog, certs *CertificateService) *WorkflowEngine {
	return &WorkflowEngine{db: db, catalog: catalog, certs: certs, now: time.Now}
}

// workflowTransitionEvent is published for every applied workflow action
type workflowTransitionEvent struct {
	TransitionID       string                `json:"transitionId"`
	SchemeID           string                `json:"schemeId"`
	StepKey            string                `json:"stepKey,omitempty"`
	Action             models.WorkflowAction `json:"action"`
	SchemeStatusBefore models.SchemeStatus   `json:"schemeStatusBefore"`
	SchemeStatusAfter  models.SchemeStatus   `json:"schemeStatusAfter"`
	ActorID            string                `json:"actorId"`
	CertificateNumber  string                `json:"certificateNumber,omitempty"`
}

func idempotencyKeyOrNew(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "auto_" + uuid.New().String()
	}
	return key
}

// replay rebuilds the result of an already recorded transition
func (e *WorkflowEngine) replay(tx *gorm.DB, schemeID, key string) (*models.WorkflowActionResult, bool, error) {
	var transition models.WorkflowTransition
	err := tx.First(&transition, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if transition.SchemeID != schemeID {
		return nil, true, fmt.Errorf("%w: idempotency key %s was used for another scheme", models.ErrConflict, key)
	}

	scheme, err := loadScheme(tx, schemeID)
	if err != nil {
		return nil, true, err
	}
	result := &models.WorkflowActionResult{Scheme: scheme, Transition: &transition, Replayed: true}

	if transition.StepKey != "" {
		var step models.SchemeWorkflowStep
		if err := tx.First(&step, "scheme_id = ? AND step_key = ?", schemeID, transition.StepKey).Error; err == nil {
			result.Step = &step
		}
	}
	if transition.SchemeStatusAfter == models.SchemeStatusApproved && scheme.PSONumber != nil {
		var cert models.Certificate
		if err := tx.First(&cert, "number = ?", *scheme.PSONumber).Error; err == nil {
			result.Certificate = &cert
		}
	}
	return result, true, nil
}

// run wraps an action in a transaction with idempotent replay. A key that
// lost a race with a concurrent retry is resolved to the recorded outcome.
func (e *WorkflowEngine) run(ctx context.Context, schemeID, key string, apply func(tx *gorm.DB) (*models.WorkflowActionResult, error)) (*models.WorkflowActionResult, error) {
	var result *models.WorkflowActionResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		replayed, found, err := e.replay(tx, schemeID, key)
		if err != nil {
			return err
		}
		if found {
			result = replayed
			return nil
		}
		result, err = apply(tx)
		return err
	})
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		replayed, found, replayErr := e.replay(e.db.WithContext(ctx), schemeID, key)
		if replayErr == nil && found {
			return replayed, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		slog.Info("Workflow action replayed", "schemeID", schemeID, "idempotencyKey", key)
	} else {
		monitoring.RecordWorkflowTransition(result.Transition.StepKey, string(result.Transition.Action))
	}
	return result, nil
}

// record appends the transition and its outbox event
func (e *WorkflowEngine) record(tx *gorm.DB, transition *models.WorkflowTransition, certNumber string) error {
	transition.TransitionID = newID(prefixTransition)
	if err := tx.Create(transition).Error; err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	_, err := enqueueOutbox(tx, models.OutboxJobTypeWorkflowTransition, transition.SchemeID, workflowTransitionEvent{
		TransitionID:       transition.TransitionID,
		SchemeID:           transition.SchemeID,
		StepKey:            transition.StepKey,
		Action:             transition.Action,
		SchemeStatusBefore: transition.SchemeStatusBefore,
		SchemeStatusAfter:  transition.SchemeStatusAfter,
		ActorID:            transition.ActorID,
		CertificateNumber:  certNumber,
	})
	return err
}

func loadSteps(tx *gorm.DB, schemeID string) ([]models.SchemeWorkflowStep, error) {
	var steps []models.SchemeWorkflowStep
	if err := tx.Where("scheme_id = ?", schemeID).Order("position ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}
	return steps, nil
}

func updateStep(tx *gorm.DB, step *models.SchemeWorkflowStep, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	if err := tx.Model(&models.SchemeWorkflowStep{}).Where("step_id = ?", step.StepID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update step %s: %w", step.StepKey, err)
	}
	return nil
}

// SubmitScheme sends a draft scheme into review. The first submission
// materialises the steps from the catalog; a resubmission after a change
// request re-opens the step that asked for changes.
func (e *WorkflowEngine) SubmitScheme(ctx context.Context, actor *models.AuthenticatedUser, schemeID, idempotencyKey string) (*models.WorkflowActionResult, error) {
	key := idempotencyKeyOrNew(idempotencyKey)

	return e.run(ctx, schemeID, key, func(tx *gorm.DB) (*models.WorkflowActionResult, error) {
		scheme, err := loadScheme(tx, schemeID)
		if err != nil {
			return nil, err
		}
		if err := requireSchemeOwner(actor, scheme); err != nil {
			return nil, err
		}
		if scheme.Status != models.SchemeStatusDraft {
			return nil, transitionError("only a draft scheme can be submitted, status is %s", scheme.Status)
		}

		if missing, err := e.missingRequiredDocuments(tx, schemeID); err != nil {
			return nil, err
		} else if len(missing) > 0 {
			return nil, validationError("required documents missing: %s", strings.Join(missing, ", "))
		}

		steps, err := loadSteps(tx, schemeID)
		if err != nil {
			return nil, err
		}

		now := e.now()
		var opened *models.SchemeWorkflowStep
		fromStatus := models.StepStatusPending

		if len(steps) == 0 {
			for i, def := range e.catalog.Workflow {
				step := models.SchemeWorkflowStep{
					StepID:   newID(prefixStep),
					SchemeID: schemeID,
					Position: i,
					StepKey:  def.Key,
					Name:     def.Name,
					Status:   models.StepStatusPending,
				}
				if i == 0 {
					step.Status = models.StepStatusInProgress
				}
				if err := tx.Create(&step).Error; err != nil {
					return nil, fmt.Errorf("failed to create workflow step: %w", err)
				}
				steps = append(steps, step)
			}
			opened = &steps[0]
		} else {
			for i := range steps {
				if steps[i].Status == models.StepStatusChangesRequested {
					opened = &steps[i]
					break
				}
			}
			if opened == nil {
				return nil, transitionError("scheme %s has no step awaiting resubmission", schemeID)
			}
			fromStatus = opened.Status
			if err := updateStep(tx, opened, map[string]interface{}{
				"status":   models.StepStatusInProgress,
				"acted_by": nil,
				"comment":  nil,
				"acted_at": nil,
			}); err != nil {
				return nil, err
			}
			opened.Status = models.StepStatusInProgress
			opened.ActedBy, opened.Comment, opened.ActedAt = nil, nil, nil
		}

		before := scheme.Status
		if err := saveSchemeVersioned(tx, scheme, map[string]interface{}{"status": models.SchemeStatusSubmitted}); err != nil {
			return nil, err
		}
		scheme.Status = models.SchemeStatusSubmitted

		transition := &models.WorkflowTransition{
			SchemeID:           schemeID,
			StepKey:            opened.StepKey,
			Action:             models.WorkflowActionSubmit,
			FromStatus:         fromStatus,
			ToStatus:           models.StepStatusInProgress,
			SchemeStatusBefore: before,
			SchemeStatusAfter:  scheme.Status,
			ActorID:            actor.UserID,
			IdempotencyKey:     key,
		}
		if err := e.record(tx, transition, ""); err != nil {
			return nil, err
		}

		slog.Info("Scheme submitted", "schemeID", schemeID, "step", opened.StepKey, "at", now)
		return &models.WorkflowActionResult{Scheme: scheme, Step: opened, Transition: transition}, nil
	})
}

// ActOnStep applies a review action to the scheme's current step
func (e *WorkflowEngine) ActOnStep(ctx context.Context, schemeID string, action models.WorkflowAction, actor *models.AuthenticatedUser, comment *string, idempotencyKey string) (*models.WorkflowActionResult, error) {
	if !action.IsReviewAction() {
		return nil, validationError("action must be one of [approve reject request_changes]")
	}
	comment = trimmedComment(comment)
	if (action == models.WorkflowActionReject || action == models.WorkflowActionRequestChanges) && comment == nil {
		return nil, validationError("a comment is required to %s", strings.ReplaceAll(string(action), "_", " "))
	}
	key := idempotencyKeyOrNew(idempotencyKey)

	return e.run(ctx, schemeID, key, func(tx *gorm.DB) (*models.WorkflowActionResult, error) {
		scheme, err := loadScheme(tx, schemeID)
		if err != nil {
			return nil, err
		}
		if scheme.Status != models.SchemeStatusSubmitted && scheme.Status != models.SchemeStatusUnderReview {
			return nil, transitionError("scheme in status %s is not under review", scheme.Status)
		}

		steps, err := loadSteps(tx, schemeID)
		if err != nil {
			return nil, err
		}
		current := -1
		for i := range steps {
			if steps[i].Status == models.StepStatusInProgress {
				current = i
				break
			}
		}
		if current < 0 {
			return nil, transitionError("scheme %s has no step in progress", schemeID)
		}
		step := &steps[current]

		now := e.now()
		before := scheme.Status
		after := models.SchemeStatusUnderReview
		var stepStatus models.StepStatus
		var cert *models.Certificate

		switch action {
		case models.WorkflowActionApprove:
			if pending, err := e.unapprovedStepDocuments(tx, schemeID, step.StepKey); err != nil {
				return nil, err
			} else if len(pending) > 0 {
				return nil, transitionError("step %s needs approved documents: %s", step.StepKey, strings.Join(pending, ", "))
			}
			stepStatus = models.StepStatusApproved
			if current+1 < len(steps) {
				next := &steps[current+1]
				if err := updateStep(tx, next, map[string]interface{}{"status": models.StepStatusInProgress}); err != nil {
					return nil, err
				}
				next.Status = models.StepStatusInProgress
			} else {
				after = models.SchemeStatusApproved
			}

		case models.WorkflowActionReject:
			stepStatus = models.StepStatusRejected
			after = models.SchemeStatusRejected
			for i := current + 1; i < len(steps); i++ {
				if steps[i].Status != models.StepStatusPending {
					continue
				}
				if err := updateStep(tx, &steps[i], map[string]interface{}{"status": models.StepStatusCancelled}); err != nil {
					return nil, err
				}
				steps[i].Status = models.StepStatusCancelled
			}

		case models.WorkflowActionRequestChanges:
			stepStatus = models.StepStatusChangesRequested
			after = models.SchemeStatusDraft
		}

		if err := updateStep(tx, step, map[string]interface{}{
			"status":   stepStatus,
			"acted_by": actor.UserID,
			"comment":  comment,
			"acted_at": now,
		}); err != nil {
			return nil, err
		}
		step.Status = stepStatus
		step.ActedBy = &actor.UserID
		step.Comment = comment
		step.ActedAt = &now

		updates := map[string]interface{}{"status": after}
		if after == models.SchemeStatusApproved {
			cert, err = e.certs.issue(tx, scheme, models.CertificateTypePSO, actor.UserID, now)
			if err != nil {
				return nil, err
			}
			updates["pso_number"] = cert.Number
		}
		if err := saveSchemeVersioned(tx, scheme, updates); err != nil {
			return nil, err
		}
		scheme.Status = after
		if cert != nil {
			scheme.PSONumber = &cert.Number
		}

		transition := &models.WorkflowTransition{
			SchemeID:           schemeID,
			StepKey:            step.StepKey,
			Action:             action,
			FromStatus:         models.StepStatusInProgress,
			ToStatus:           stepStatus,
			SchemeStatusBefore: before,
			SchemeStatusAfter:  after,
			ActorID:            actor.UserID,
			Comment:            comment,
			IdempotencyKey:     key,
		}
		certNumber := ""
		if cert != nil {
			certNumber = cert.Number
			if _, err := enqueueOutbox(tx, models.OutboxJobTypeCertificateIssued, schemeID, certificateIssuedEvent{
				CertificateID: cert.CertificateID,
				SchemeID:      schemeID,
				Type:          cert.Type,
				Number:        cert.Number,
				SHA256:        cert.SHA256,
			}); err != nil {
				return nil, err
			}
		}
		if err := e.record(tx, transition, certNumber); err != nil {
			return nil, err
		}

		slog.Info("Workflow action applied",
			"schemeID", schemeID, "step", step.StepKey, "action", action,
			"schemeStatus", after, "actorID", actor.UserID)
		return &models.WorkflowActionResult{Scheme: scheme, Step: step, Transition: transition, Certificate: cert}, nil
	})
}

// GetWorkflow returns the steps and transition history of a scheme
func (e *WorkflowEngine) GetWorkflow(ctx context.Context, schemeID string) (*models.WorkflowView, error) {
	db := e.db.WithContext(ctx)
	scheme, err := loadScheme(db, schemeID)
	if err != nil {
		return nil, err
	}
	steps, err := loadSteps(db, schemeID)
	if err != nil {
		return nil, err
	}
	var transitions []models.WorkflowTransition
	if err := db.Where("scheme_id = ?", schemeID).Order("created_at ASC").Find(&transitions).Error; err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}

	view := &models.WorkflowView{
		SchemeID:    schemeID,
		Status:      scheme.Status,
		Steps:       steps,
		Transitions: transitions,
	}
	if view.Steps == nil {
		view.Steps = []models.SchemeWorkflowStep{}
	}
	if view.Transitions == nil {
		view.Transitions = []models.WorkflowTransition{}
	}
	for i := range steps {
		if steps[i].Status == models.StepStatusInProgress || steps[i].Status == models.StepStatusChangesRequested {
			view.CurrentStep = &view.Steps[i]
			break
		}
	}
	return view, nil
}

// missingRequiredDocuments lists required document types with no upload or only rejected uploads
func (e *WorkflowEngine) missingRequiredDocuments(tx *gorm.DB, schemeID string) ([]string, error) {
	var missing []string
	for _, docType := range e.catalog.RequiredDocumentTypes() {
		var count int64
		if err := tx.Model(&models.Document{}).
			Where("scheme_id = ? AND document_type = ? AND status <> ?", schemeID, docType, models.StatusRejected).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check documents: %w", err)
		}
		if count == 0 {
			missing = append(missing, docType)
		}
	}
	return missing, nil
}

// unapprovedStepDocuments lists the documents a step requires that are not approved yet
func (e *WorkflowEngine) unapprovedStepDocuments(tx *gorm.DB, schemeID, stepKey string) ([]string, error) {
	var required []string
	for _, def := range e.catalog.Workflow {
		if def.Key == stepKey {
			required = def.RequiredDocuments
			break
		}
	}

	var pending []string
	for _, docType := range required {
		var count int64
		if err := tx.Model(&models.Document{}).
			Where("scheme_id = ? AND document_type = ? AND status = ?", schemeID, docType, models.StatusApproved).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check documents: %w", err)
		}
		if count == 0 {
			pending = append(pending, docType)
		}
	}
	return pending, nil
}
