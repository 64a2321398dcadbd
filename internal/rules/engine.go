package rules

import (
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"patient-registration/pkg/validator"
)

// FieldErrors maps a field name to its first failing message.
type FieldErrors map[string]string

// Candidate is an unvalidated patient submission.
type Candidate struct {
	FullName         string
	Email            string
	PhoneCountryCode string
	PhoneNumber      string
	Photo            *Photo
}

// Photo describes an uploaded document photo. ContentType is the sniffed MIME
// type of the content, not the type declared by the client.
type Photo struct {
	Filename    string
	Size        int64
	ContentType string
}

func (c Candidate) value(field string) string {
	switch field {
	case FieldFullName:
		return c.FullName
	case FieldEmail:
		return c.Email
	case FieldPhoneCountryCode:
		return c.PhoneCountryCode
	case FieldPhoneNumber:
		return c.PhoneNumber
	}
	return ""
}

// Engine applies the rule table. It performs no I/O.
type Engine struct {
	validator *validator.CustomValidator
}

func NewEngine() (*Engine, error) {
	cv, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &Engine{validator: cv}, nil
}

// MustNewEngine is NewEngine for callers that treat a broken rule table as fatal.
func MustNewEngine() *Engine {
	e, err := NewEngine()
	if err != nil {
		panic(err)
	}
	return e
}

// Check validates every field independently and returns the collected errors.
// An empty result means the candidate is valid.
func (e *Engine) Check(c Candidate) FieldErrors {
	errs := make(FieldErrors)

	for _, f := range PatientFields {
		if msg := e.validator.ValidateValue(f.Field, c.value(f.Field), f.Tags); msg != "" {
			errs[f.Field] = msg
		}
	}

	if msg := CheckPhoto(c.Photo); msg != "" {
		errs[FieldDocumentPhoto] = msg
	}

	return errs
}

// CheckField validates a single text field.
func (e *Engine) CheckField(field, value string) string {
	for _, f := range PatientFields {
		if f.Field == field {
			return e.validator.ValidateValue(f.Field, value, f.Tags)
		}
	}
	return ""
}

// CheckPhoto applies the document photo rules.
func CheckPhoto(p *Photo) string {
	rule := DocumentPhoto
	if p == nil || p.Size == 0 {
		return rule.Messages[RuleRequired]
	}

	isJPEG := contains(rule.MimeTypes, p.ContentType)
	if p.ContentType == "" {
		isJPEG = hasExtension(p.Filename, rule.Extensions)
	}
	if !isJPEG {
		return rule.Messages[RuleType]
	}

	if p.Size > rule.MaxBytes {
		return rule.Messages[RuleSize]
	}
	return ""
}

// SniffPhoto inspects the leading bytes of r to build a Photo description.
func SniffPhoto(filename string, size int64, r io.Reader) (*Photo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}
	return &Photo{
		Filename:    filename,
		Size:        size,
		ContentType: baseType(mtype),
	}, nil
}

func baseType(m *mimetype.MIME) string {
	for _, t := range DocumentPhoto.MimeTypes {
		if m.Is(t) {
			return t
		}
	}
	return m.String()
}
