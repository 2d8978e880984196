package models

import "time"

// Certificate is an issued regulatory certificate. SHA256 covers Body and is
// used to verify that a stored certificate has not been altered.
type Certificate struct {
	CertificateID string          `gorm:"primarykey;column:certificate_id" json:"certificateId"`
	SchemeID      string          `gorm:"column:scheme_id;not null;index" json:"schemeId"`
	Type          CertificateType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Number        string          `gorm:"column:number;not null;uniqueIndex" json:"number"`
	Body          string          `gorm:"column:body;type:text;not null" json:"body"`
	SHA256        string          `gorm:"column:sha256;type:varchar(64);not null" json:"sha256"`
	IssuedBy      string          `gorm:"column:issued_by;not null" json:"issuedBy"`
	IssuedAt      time.Time       `gorm:"column:issued_at;not null" json:"issuedAt"`
	BaseModel
}

// TableName sets the table name for GORM
func (Certificate) TableName() string {
	return "certificates"
}

// CertificateVerification is the result of re-hashing a stored certificate
type CertificateVerification struct {
	CertificateID string `json:"certificateId"`
	Number        string `json:"number"`
	Valid         bool   `json:"valid"`
	ExpectedHash  string `json:"expectedHash"`
	ActualHash    string `json:"actualHash"`
}
