// Package rules holds the patient registration rule table. The same table
// drives the server-side engine, the rules endpoint consumed by the web UI and
// the pre-submission checks of the command line client.
package rules

import (
	"path/filepath"
	"strings"

	"patient-registration/pkg/validator"
)

const (
	FieldFullName         = "full_name"
	FieldEmail            = "email"
	FieldPhoneCountryCode = "phone_country_code"
	FieldPhoneNumber      = "phone_number"
	FieldDocumentPhoto    = "document_photo"
)

// FieldRule describes the checks applied to one text field, in evaluation order.
type FieldRule struct {
	Field     string            `json:"field"`
	Label     string            `json:"label"`
	Tags      string            `json:"-"`
	Pattern   string            `json:"pattern"`
	MaxLength int               `json:"max_length"`
	Messages  map[string]string `json:"messages"`
}

// PhotoRule describes the checks applied to the uploaded document photo.
type PhotoRule struct {
	Field      string            `json:"field"`
	MaxBytes   int64             `json:"max_bytes"`
	HintBytes  int64             `json:"hint_bytes"`
	MimeTypes  []string          `json:"mime_types"`
	Extensions []string          `json:"extensions"`
	Messages   map[string]string `json:"messages"`
}

// Table is the serialisable form of the complete rule set.
type Table struct {
	Fields        []FieldRule `json:"fields"`
	DocumentPhoto PhotoRule   `json:"document_photo"`
}

// Message keys shared by the table and its consumers.
const (
	RuleRequired = "required"
	RulePattern  = "pattern"
	RuleEmail    = "email"
	RuleMax      = "max"
	RuleUnique   = "unique"
	RuleType     = "mimes"
	RuleSize     = "size"
)

const (
	MaxPhotoBytes  int64 = 10 << 20
	HintPhotoBytes int64 = 5 << 20
)

var PatientFields = []FieldRule{
	{
		Field:     FieldFullName,
		Label:     "Full name",
		Tags:      "required,full_name_pattern,max=255",
		Pattern:   `^[A-Za-z\s]+$`,
		MaxLength: 255,
		Messages: map[string]string{
			RuleRequired: "Full name is required",
			RulePattern:  "Full name should only contain letters and spaces",
			RuleMax:      "Full name must not exceed 255 characters",
		},
	},
	{
		Field:     FieldEmail,
		Label:     "Email address",
		Tags:      "required,email,email_pattern,max=255",
		Pattern:   `^[\w.%+-]+@gmail\.com$`,
		MaxLength: 255,
		Messages: map[string]string{
			RuleRequired: "Email address is required",
			RuleEmail:    "Email address must be valid",
			RulePattern:  "Only @gmail.com email addresses are accepted",
			RuleMax:      "Email address must not exceed 255 characters",
			RuleUnique:   "This email address is already registered",
		},
	},
	{
		Field:     FieldPhoneCountryCode,
		Label:     "Country code",
		Tags:      "required,phone_country_code_pattern,max=10",
		Pattern:   `^\+\d{1,4}$`,
		MaxLength: 10,
		Messages: map[string]string{
			RuleRequired: "Country code is required",
			RulePattern:  "Country code must be a valid format (+ followed by 1-4 digits)",
			RuleMax:      "Country code must not exceed 10 characters",
		},
	},
	{
		Field:     FieldPhoneNumber,
		Label:     "Phone number",
		Tags:      "required,phone_number_pattern,max=20",
		Pattern:   `^\d+$`,
		MaxLength: 20,
		Messages: map[string]string{
			RuleRequired: "Phone number is required",
			RulePattern:  "Phone number must contain only digits",
			RuleMax:      "Phone number must not exceed 20 characters",
		},
	},
}

var DocumentPhoto = PhotoRule{
	Field:      FieldDocumentPhoto,
	MaxBytes:   MaxPhotoBytes,
	HintBytes:  HintPhotoBytes,
	MimeTypes:  []string{"image/jpeg"},
	Extensions: []string{"jpg", "jpeg"},
	Messages: map[string]string{
		RuleRequired: "Document photo is required",
		RuleType:     "Document photo must be a JPG image",
		RuleSize:     "Document photo must not exceed 10MB",
	},
}

// Describe returns the full rule table.
func Describe() Table {
	return Table{Fields: PatientFields, DocumentPhoto: DocumentPhoto}
}

// Message returns the message registered for field/rule, or "" when unknown.
func Message(field, rule string) string {
	if field == FieldDocumentPhoto {
		return DocumentPhoto.Messages[rule]
	}
	for _, f := range PatientFields {
		if f.Field == field {
			return f.Messages[rule]
		}
	}
	return ""
}

func patternTag(field string) string {
	return field + "_pattern"
}

// newValidator builds a validator with one pattern tag per field and the
// table's messages bound to the validator tags.
func newValidator() (*validator.CustomValidator, error) {
	cv := validator.NewValidator()
	for _, f := range PatientFields {
		tag := patternTag(f.Field)
		if err := cv.RegisterPattern(tag, f.Pattern); err != nil {
			return nil, err
		}
		for rule, msg := range f.Messages {
			switch rule {
			case RulePattern:
				cv.RegisterMessage(f.Field, tag, msg)
			case RuleUnique:
			default:
				cv.RegisterMessage(f.Field, rule, msg)
			}
		}
	}
	return cv, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
