package models

// Document is an uploaded scheme document. The content lives in the blob
// store under StorageKey and is addressed by its SHA-256 digest.
type Document struct {
	DocumentID   string  `gorm:"primarykey;column:document_id" json:"documentId"`
	SchemeID     string  `gorm:"column:scheme_id;not null;index" json:"schemeId"`
	DocumentType string  `gorm:"column:document_type;not null" json:"documentType"`
	FileName     string  `gorm:"column:file_name;not null" json:"fileName"`
	ContentType  string  `gorm:"column:content_type" json:"contentType"`
	SizeBytes    int64   `gorm:"column:size_bytes;not null" json:"sizeBytes"`
	SHA256       string  `gorm:"column:sha256;type:varchar(64);not null" json:"sha256"`
	StorageKey   string  `gorm:"column:storage_key;not null" json:"-"`
	Status       Status  `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	Review       *string `gorm:"column:review" json:"review,omitempty"`
	UploadedBy   string  `gorm:"column:uploaded_by;not null" json:"uploadedBy"`
	ReviewedBy   *string `gorm:"column:reviewed_by" json:"reviewedBy,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (Document) TableName() string {
	return "documents"
}

// DocumentTypeStatus is the review state of one document type for a scheme
type DocumentTypeStatus struct {
	DocumentType string  `json:"documentType"`
	Name         string  `json:"name"`
	Required     bool    `json:"required"`
	Status       *Status `json:"status,omitempty"` // nil when nothing was uploaded
	DocumentID   *string `json:"documentId,omitempty"`
	Badge        string  `json:"badge"`
}

// DocumentSummary aggregates document review state for a scheme
type DocumentSummary struct {
	SchemeID        string               `json:"schemeId"`
	Types           []DocumentTypeStatus `json:"types"`
	MissingRequired []string             `json:"missingRequired"`
	AllApproved     bool                 `json:"allApproved"`
}
