package models

// AccessRequest is a public request for a foreman or subscriber account.
// It can only be approved after the applicant passes the MCQ assessment.
type AccessRequest struct {
	RequestID          string  `gorm:"primarykey;column:request_id" json:"requestId"`
	Name               string  `gorm:"column:name;not null" json:"name"`
	Email              string  `gorm:"column:email;not null;index" json:"email"`
	Phone              string  `gorm:"column:phone" json:"phone,omitempty"`
	Organization       string  `gorm:"column:organization" json:"organization,omitempty"`
	RequestedRole      Role    `gorm:"column:requested_role;type:varchar(50);not null" json:"requestedRole"`
	Reason             string  `gorm:"column:reason" json:"reason,omitempty"`
	Status             Status  `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	AssessmentScore    *int    `gorm:"column:assessment_score" json:"assessmentScore,omitempty"`
	AssessmentPassed   bool    `gorm:"column:assessment_passed;not null;default:false" json:"assessmentPassed"`
	AssessmentAttempts int     `gorm:"column:assessment_attempts;not null;default:0" json:"assessmentAttempts"`
	Review             *string `gorm:"column:review" json:"review,omitempty"`
	ReviewedBy         *string `gorm:"column:reviewed_by" json:"reviewedBy,omitempty"`
	UserID             *string `gorm:"column:user_id" json:"userId,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (AccessRequest) TableName() string {
	return "access_requests"
}

// AssessmentQuestion is a question as shown to applicants, without the answer key
type AssessmentQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// AssessmentResult is the outcome of one assessment attempt
type AssessmentResult struct {
	RequestID         string `json:"requestId"`
	Correct           int    `json:"correct"`
	Total             int    `json:"total"`
	Score             int    `json:"score"`
	PassMark          int    `json:"passMark"`
	Passed            bool   `json:"passed"`
	Attempts          int    `json:"attempts"`
	RemainingAttempts int    `json:"remainingAttempts"`
}
