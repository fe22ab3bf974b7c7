// Package pointer implements the rules for defining, editing and deleting
// compliance pointers and their supporting documents.
package pointer

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"compliance/internal/domain"
	"compliance/internal/store"
)

var (
	// ErrNoUploads is returned when a new pointer is saved without any document.
	ErrNoUploads = errors.New("please upload at least one supporting document before saving the pointer")

	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid pointer")

	// ErrUnsupportedUpload is wrapped with the name of a rejected upload.
	ErrUnsupportedUpload = errors.New("unsupported file type")

	numberingRe = regexp.MustCompile(`^\d+\.\s*`)
)

// AllowedExtensions are the upload types accepted for supporting documents.
var AllowedExtensions = []string{".pdf", ".docx", ".ppt", ".jpeg", ".png", ".pptx"}

// Upload is a file submitted with a pointer.
type Upload struct {
	Name string
	Data []byte
}

// Draft is the editable form of a pointer. An empty ID means a new pointer.
type Draft struct {
	ID                       string
	Name                     string `validate:"required"`
	Objective                string
	ComplianceRequirements   string
	SupportingDocumentPoints string
	Language                 string `validate:"required,language"`
	Year                     int    `validate:"required,year"`
}

// DraftFrom returns the editable form of an existing pointer.
func DraftFrom(p *domain.Pointer) *Draft {
	return &Draft{
		ID:                       p.ID,
		Name:                     p.Name,
		Objective:                NormalizeLines(p.Objective),
		ComplianceRequirements:   NormalizeLines(p.ComplianceRequirements),
		SupportingDocumentPoints: NormalizeLines(p.SupportingDocumentPoints),
		Language:                 string(p.Language),
		Year:                     p.Year,
	}
}

// Service saves and deletes pointers.
type Service struct {
	store     store.Store
	validate  *validator.Validate
	logger    *zap.Logger
	years     []int
	languages []string
}

// NewService creates a pointer service restricted to the given years and languages.
func NewService(st store.Store, years []int, languages []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     st,
		validate:  validator.New(),
		logger:    logger,
		years:     years,
		languages: languages,
	}
	_ = s.validate.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return contains(s.languages, fl.Field().String())
	})
	_ = s.validate.RegisterValidation("year", func(fl validator.FieldLevel) bool {
		y := int(fl.Field().Int())
		for _, allowed := range s.years {
			if allowed == y {
				return true
			}
		}
		return false
	})
	return s
}

// Years returns the selectable compliance years.
func (s *Service) Years() []int { return s.years }

// Languages returns the selectable languages.
func (s *Service) Languages() []string { return s.languages }

// Validate checks the draft fields and upload names.
func (s *Service) Validate(draft *Draft, uploads []Upload) error {
	if err := s.validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.Wrap(ErrInvalid, strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "validate pointer")
	}
	return ValidateUploads(uploads)
}

// ValidateUploads rejects the batch if any upload has an unsupported extension.
func ValidateUploads(uploads []Upload) error {
	for _, u := range uploads {
		if !AllowedUpload(u.Name) {
			return errors.Wrap(ErrUnsupportedUpload, filepath.Base(u.Name))
		}
	}
	return nil
}

// Save creates or updates the pointer described by draft and attaches uploads.
// Saving always resets the compliance status to "Not Checked".
func (s *Service) Save(ctx context.Context, draft *Draft, uploads []Upload) (*domain.Pointer, error) {
	if err := s.Validate(draft, uploads); err != nil {
		return nil, err
	}
	editing := draft.ID != ""
	if !editing && len(uploads) == 0 {
		return nil, ErrNoUploads
	}

	p := &domain.Pointer{
		ID:                       draft.ID,
		Name:                     strings.TrimSpace(draft.Name),
		Objective:                NormalizeLines(draft.Objective),
		ComplianceRequirements:   NormalizeLines(draft.ComplianceRequirements),
		SupportingDocumentPoints: NormalizeLines(draft.SupportingDocumentPoints),
		Language:                 domain.Language(draft.Language),
		ComplianceStatus:         domain.StatusNotChecked,
		Year:                     draft.Year,
	}

	if editing {
		if _, err := s.store.GetPointer(ctx, p.ID); err != nil {
			return nil, err
		}
		if _, err := s.store.UpdatePointer(ctx, &store.UpdatePointer{
			ID:                       p.ID,
			Name:                     &p.Name,
			Objective:                &p.Objective,
			ComplianceRequirements:   &p.ComplianceRequirements,
			SupportingDocumentPoints: &p.SupportingDocumentPoints,
			Language:                 &p.Language,
			ComplianceStatus:         &p.ComplianceStatus,
			Year:                     &p.Year,
		}); err != nil {
			return nil, err
		}
		s.logger.Info("pointer updated", zap.String("pointer_id", p.ID), zap.String("name", p.Name))
	} else {
		if _, err := s.store.CreatePointer(ctx, p); err != nil {
			return nil, err
		}
		s.logger.Info("pointer created", zap.String("pointer_id", p.ID), zap.String("name", p.Name))
	}

	for _, u := range uploads {
		if _, err := s.AddDocument(ctx, p.ID, u); err != nil {
			return nil, err
		}
	}
	return s.store.GetPointer(ctx, p.ID)
}

// AddDocuments attaches uploads to an existing pointer. Nothing is stored
// unless every upload is accepted.
func (s *Service) AddDocuments(ctx context.Context, pointerID string, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, ErrNoUploads
	}
	if err := ValidateUploads(uploads); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		id, err := s.AddDocument(ctx, pointerID, u)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddDocument attaches a single upload to an existing pointer.
func (s *Service) AddDocument(ctx context.Context, pointerID string, u Upload) (string, error) {
	if err := ValidateUploads([]Upload{u}); err != nil {
		return "", err
	}
	id, err := s.store.CreateDocument(ctx, pointerID, filepath.Base(u.Name), u.Data)
	if err != nil {
		return "", err
	}
	s.logger.Info("document uploaded",
		zap.String("pointer_id", pointerID),
		zap.String("document_id", id),
		zap.String("name", u.Name),
		zap.Int("bytes", len(u.Data)))
	return id, nil
}

// Delete removes a pointer together with its documents and compliance results.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.GetPointer(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.store.DeletePointer(ctx, id); err != nil {
		return err
	}
	docs, err := s.store.DeleteDocumentsByPointer(ctx, id)
	if err != nil {
		return err
	}
	results, err := s.store.DeleteResultsByPointer(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("pointer deleted",
		zap.String("pointer_id", id),
		zap.String("name", p.Name),
		zap.Int64("documents", docs),
		zap.Int64("results", results))
	return nil
}

// NormalizeLines trims every line, drops empty ones and strips leading "N." numbering.
func NormalizeLines(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, numberingRe.ReplaceAllString(line, ""))
	}
	return strings.Join(out, "\n")
}

// FormatLines returns the non-empty trimmed lines of text for display.
func FormatLines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// StatusClass maps a compliance status to its display class.
func StatusClass(status domain.Status) string {
	switch status {
	case domain.StatusFullyCompliant:
		return "compliant"
	case domain.StatusPartiallyCompliant:
		return "partially-compliant"
	case domain.StatusNotCompliant:
		return "not-compliant"
	default:
		return "not-checked"
	}
}

// AllowedUpload reports whether name has an accepted extension.
func AllowedUpload(name string) bool {
	return contains(AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "language":
		return "unsupported language: " + fe.Value().(string)
	case "year":
		return "unsupported compliance year"
	default:
		return fe.Field() + " is invalid"
	}
}
