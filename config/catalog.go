package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkflowStepDefinition is one step of the scheme approval workflow.
// RequiredDocuments must all be approved before the step can be approved.
type WorkflowStepDefinition struct {
	Key               string   `yaml:"key"`
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	RequiredDocuments []string `yaml:"requiredDocuments"`
}

// DocumentTypeDefinition is a document a foreman can upload for a scheme.
type DocumentTypeDefinition struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

// Question is a multiple choice question. Answer is the index of the
// correct option.
type Question struct {
	ID      string   `yaml:"id"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
	Answer  int      `yaml:"answer"`
}

// Assessment is the MCQ gate for access requests.
type Assessment struct {
	PassMark  int        `yaml:"passMark"`
	Questions []Question `yaml:"questions"`
}

// Catalog holds the domain catalogues that operators tune without a release.
type Catalog struct {
	Workflow      []WorkflowStepDefinition `yaml:"workflow"`
	DocumentTypes []DocumentTypeDefinition `yaml:"documentTypes"`
	Assessment    Assessment               `yaml:"assessment"`
}

var (
	// DefaultWorkflow is the approval pipeline used when no catalog file is present
	DefaultWorkflow = []WorkflowStepDefinition{
		{
			Key:               "document_verification",
			Name:              "Document Verification",
			Description:       "Registrar verifies the foreman's statutory documents",
			RequiredDocuments: []string{"bye_laws", "bank_guarantee", "foreman_kyc"},
		},
		{Key: "financial_review", Name: "Financial Review", Description: "Security deposit and scheme terms are checked"},
		{Key: "legal_review", Name: "Legal Review", Description: "Bye-laws are checked against the Chit Funds Act"},
		{Key: "pso_issuance", Name: "PSO Issuance", Description: "Prior Sanction Order is prepared"},
		{Key: "final_approval", Name: "Final Approval", Description: "Registrar signs off the scheme"},
	}

	// DefaultDocumentTypes are the documents accepted when no catalog file is present
	DefaultDocumentTypes = []DocumentTypeDefinition{
		{Key: "bye_laws", Name: "Bye-laws of the Chit", Required: true},
		{Key: "bank_guarantee", Name: "Bank Guarantee / Security Deposit", Required: true},
		{Key: "foreman_kyc", Name: "Foreman KYC", Required: true},
		{Key: "agreement", Name: "Chit Agreement Draft", Required: false},
	}

	// DefaultAssessment is the MCQ used when no catalog file is present
	DefaultAssessment = Assessment{
		PassMark: 60,
		Questions: []Question{
			{
				ID:      "q1",
				Text:    "What is the maximum foreman commission allowed on the chit amount?",
				Options: []string{"2%", "5%", "10%", "15%"},
				Answer:  1,
			},
			{
				ID:      "q2",
				Text:    "Before a chit can commence, the foreman must obtain:",
				Options: []string{"A GST number", "A Prior Sanction Order", "A trade licence only", "Nothing"},
				Answer:  1,
			},
			{
				ID:      "q3",
				Text:    "The duration of a chit in months equals:",
				Options: []string{"The number of subscribers", "Twelve", "The commission rate", "Any value"},
				Answer:  0,
			},
			{
				ID:      "q4",
				Text:    "The auction discount is distributed as:",
				Options: []string{"Foreman profit", "Government levy", "Dividend to subscribers", "Bank interest"},
				Answer:  2,
			},
			{
				ID:      "q5",
				Text:    "A subscriber who misses an installment is recorded as a:",
				Options: []string{"Prized subscriber", "Defaulter", "Foreman", "Nominee"},
				Answer:  1,
			},
		},
	}
)

// DefaultCatalog returns a catalog built from the default values.
// Slices are copied to avoid sharing references with the package defaults.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Workflow:      append([]WorkflowStepDefinition(nil), DefaultWorkflow...),
		DocumentTypes: append([]DocumentTypeDefinition(nil), DefaultDocumentTypes...),
		Assessment: Assessment{
			PassMark:  DefaultAssessment.PassMark,
			Questions: append([]Question(nil), DefaultAssessment.Questions...),
		},
	}
	return c
}

// LoadCatalog loads the catalog from a YAML file. A missing file yields the
// defaults; sections missing from the file are filled from the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "config/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Catalog file not found, using defaults", "path", path)
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML, fills missing sections and validates the result.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(c.Workflow) == 0 {
		c.Workflow = append([]WorkflowStepDefinition(nil), DefaultWorkflow...)
	}
	if len(c.DocumentTypes) == 0 {
		c.DocumentTypes = append([]DocumentTypeDefinition(nil), DefaultDocumentTypes...)
	}
	if len(c.Assessment.Questions) == 0 {
		c.Assessment.Questions = append([]Question(nil), DefaultAssessment.Questions...)
		if c.Assessment.PassMark == 0 {
			c.Assessment.PassMark = DefaultAssessment.PassMark
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog invariants.
func (c *Catalog) Validate() error {
	docTypes := make(map[string]struct{}, len(c.DocumentTypes))
	for _, dt := range c.DocumentTypes {
		if dt.Key == "" {
			return fmt.Errorf("document type with empty key")
		}
		if _, dup := docTypes[dt.Key]; dup {
			return fmt.Errorf("duplicate document type %q", dt.Key)
		}
		docTypes[dt.Key] = struct{}{}
	}

	if len(c.Workflow) == 0 {
		return fmt.Errorf("workflow must have at least one step")
	}
	steps := make(map[string]struct{}, len(c.Workflow))
	for _, step := range c.Workflow {
		if step.Key == "" {
			return fmt.Errorf("workflow step with empty key")
		}
		if _, dup := steps[step.Key]; dup {
			return fmt.Errorf("duplicate workflow step %q", step.Key)
		}
		steps[step.Key] = struct{}{}
		for _, doc := range step.RequiredDocuments {
			if _, ok := docTypes[doc]; !ok {
				return fmt.Errorf("workflow step %q requires unknown document type %q", step.Key, doc)
			}
		}
	}

	if c.Assessment.PassMark < 0 || c.Assessment.PassMark > 100 {
		return fmt.Errorf("assessment pass mark must be between 0 and 100, got %d", c.Assessment.PassMark)
	}
	if len(c.Assessment.Questions) == 0 {
		return fmt.Errorf("assessment must have at least one question")
	}
	questions := make(map[string]struct{}, len(c.Assessment.Questions))
	for _, q := range c.Assessment.Questions {
		if q.ID == "" {
			return fmt.Errorf("assessment question with empty id")
		}
		if _, dup := questions[q.ID]; dup {
			return fmt.Errorf("duplicate assessment question %q", q.ID)
		}
		questions[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %q needs at least two options", q.ID)
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return fmt.Errorf("question %q answer index %d out of range", q.ID, q.Answer)
		}
	}
	return nil
}

// DocumentType looks up a document type by key.
func (c *Catalog) DocumentType(key string) (DocumentTypeDefinition, bool) {
	for _, dt := range c.DocumentTypes {
		if dt.Key == key {
			return dt, true
		}
	}
	return DocumentTypeDefinition{}, false
}

// RequiredDocumentTypes returns the keys of document types that must be uploaded
// before a scheme can be submitted.
func (c *Catalog) RequiredDocumentTypes() []string {
	var keys []string
	for _, dt := range c.DocumentTypes {
		if dt.Required {
			keys = append(keys, dt.Key)
		}
	}
	return keys
}
