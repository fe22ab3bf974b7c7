package domain

import (
	"fmt"
	"strings"
	"time"
)

// Language selects the reference corpus a pointer is checked against.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageArabic  Language = "Arabic"
)

// Status is the outcome of the most recent compliance check.
type Status string

const (
	StatusNotChecked         Status = "Not Checked"
	StatusFullyCompliant     Status = "Fully Compliant"
	StatusPartiallyCompliant Status = "Partially Compliant"
	StatusNotCompliant       Status = "Not Compliant"
)

// KnownStatuses lists the statuses a compliance check may produce.
var KnownStatuses = []Status{StatusFullyCompliant, StatusPartiallyCompliant, StatusNotCompliant}

// CanonicalStatus maps s onto a known status ignoring case, or returns it unchanged.
func CanonicalStatus(s string) Status {
	for _, known := range append([]Status{StatusNotChecked}, KnownStatuses...) {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known
		}
	}
	return Status(strings.TrimSpace(s))
}

// Pointer is a compliance criterion together with the evidence expected for it.
type Pointer struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Objective                string    `json:"objective"`
	ComplianceRequirements   string    `json:"compliance_requirements"`
	SupportingDocumentPoints string    `json:"supporting_document_points"`
	Language                 Language  `json:"language"`
	ComplianceStatus         Status    `json:"compliance_status"`
	Year                     int       `json:"year"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// IndexKey returns the reference index this pointer is checked against.
func (p *Pointer) IndexKey() IndexKey {
	return IndexKey{Year: p.Year, Language: p.Language}
}

// SupportingDocument is an uploaded file attached to a pointer.
type SupportingDocument struct {
	ID         string    `json:"id"`
	PointerID  string    `json:"pointer_id"`
	Name       string    `json:"name"`
	Data       []byte    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ComplianceResult records one compliance check of a pointer.
type ComplianceResult struct {
	ID        string    `json:"id"`
	PointerID string    `json:"pointer_id"`
	Status    Status    `json:"compliance_status"`
	Details   string    `json:"details"`
	CheckedAt time.Time `json:"checked_at"`
}

// IndexKey identifies one reference index.
type IndexKey struct {
	Year     int
	Language Language
}

func (k IndexKey) String() string {
	return fmt.Sprintf("%d/%s", k.Year, k.Language)
}
