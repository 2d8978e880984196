package models

import "time"

// SchemeWorkflowStep is one materialised approval step of a scheme
type SchemeWorkflowStep struct {
	StepID   string     `gorm:"primarykey;column:step_id" json:"stepId"`
	SchemeID string     `gorm:"column:scheme_id;not null;uniqueIndex:idx_scheme_step_position" json:"schemeId"`
	Position int        `gorm:"column:position;not null;uniqueIndex:idx_scheme_step_position" json:"position"`
	StepKey  string     `gorm:"column:step_key;not null" json:"stepKey"`
	Name     string     `gorm:"column:name;not null" json:"name"`
	Status   StepStatus `gorm:"column:status;type:varchar(30);not null" json:"status"`
	ActedBy  *string    `gorm:"column:acted_by" json:"actedBy,omitempty"`
	Comment  *string    `gorm:"column:comment" json:"comment,omitempty"`
	ActedAt  *time.Time `gorm:"column:acted_at" json:"actedAt,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (SchemeWorkflowStep) TableName() string {
	return "scheme_workflow_steps"
}

// WorkflowTransition is an append-only record of every workflow action.
// IdempotencyKey is unique so a retried action maps onto the recorded outcome.
type WorkflowTransition struct {
	TransitionID       string         `gorm:"primarykey;column:transition_id" json:"transitionId"`
	SchemeID           string         `gorm:"column:scheme_id;not null;index" json:"schemeId"`
	StepKey            string         `gorm:"column:step_key" json:"stepKey,omitempty"`
	Action             WorkflowAction `gorm:"column:action;type:varchar(30);not null" json:"action"`
	FromStatus         StepStatus     `gorm:"column:from_status;type:varchar(30)" json:"fromStatus,omitempty"`
	ToStatus           StepStatus     `gorm:"column:to_status;type:varchar(30)" json:"toStatus,omitempty"`
	SchemeStatusBefore SchemeStatus   `gorm:"column:scheme_status_before;type:varchar(20);not null" json:"schemeStatusBefore"`
	SchemeStatusAfter  SchemeStatus   `gorm:"column:scheme_status_after;type:varchar(20);not null" json:"schemeStatusAfter"`
	ActorID            string         `gorm:"column:actor_id;not null" json:"actorId"`
	Comment            *string        `gorm:"column:comment" json:"comment,omitempty"`
	IdempotencyKey     string         `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotencyKey"`
	BaseModel
}

// TableName sets the table name for GORM
func (WorkflowTransition) TableName() string {
	return "workflow_transitions"
}

// WorkflowView is the full approval state of a scheme
type WorkflowView struct {
	SchemeID    string               `json:"schemeId"`
	Status      SchemeStatus         `json:"status"`
	CurrentStep *SchemeWorkflowStep  `json:"currentStep,omitempty"`
	Steps       []SchemeWorkflowStep `json:"steps"`
	Transitions []WorkflowTransition `json:"transitions"`
}

// WorkflowActionResult is returned by a workflow action. Replayed is set when
// the idempotency key matched an earlier action and nothing was re-applied.
type WorkflowActionResult struct {
	Scheme      *Scheme             `json:"scheme"`
	Step        *SchemeWorkflowStep `json:"step,omitempty"`
	Transition  *WorkflowTransition `json:"transition"`
	Certificate *Certificate        `json:"certificate,omitempty"`
	Replayed    bool                `json:"replayed"`
}
