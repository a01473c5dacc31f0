// Package intake validates and normalizes lead submissions against the form
// rules and the reference lists of countries and visa categories.
package intake

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"leadtriage/internal/leads/models"
	dErrors "leadtriage/pkg/domain-errors"
)

// Message returned with every validation failure; per-field details travel in Fields.
const invalidSubmissionMessage = "Invalid lead submission"

// Per-field messages, keyed by wire field name. One message per field no
// matter which rule failed.
var fieldMessages = map[string]string{
	"firstName":            "First name must be at least 2 characters.",
	"lastName":             "Last name must be at least 2 characters.",
	"email":                "Please enter a valid email address.",
	"linkedinProfile":      "Please enter a valid LinkedIn URL.",
	"countryOfCitizenship": "Please select your country of citizenship.",
	"visasOfInterest":      "Please select at least one visa type.",
	"resume":               "Resume is required",
}

// submission is the rule set. The json names become the Fields keys.
type submission struct {
	FirstName            string   `json:"firstName" validate:"min=2"`
	LastName             string   `json:"lastName" validate:"min=2"`
	Email                string   `json:"email" validate:"required,email"`
	LinkedInProfile      string   `json:"linkedinProfile" validate:"required,url"`
	CountryOfCitizenship string   `json:"countryOfCitizenship" validate:"required"`
	VisasOfInterest      []string `json:"visasOfInterest" validate:"min=1"`
	ResumeURL            string   `json:"resume" validate:"required"`
}

// Validator checks intakes. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	ref      *ReferenceData
	enforce  bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithEnforceReferenceData toggles reference-list membership checks for
// country and visa ids. Enabled by default.
func WithEnforceReferenceData(enforce bool) ValidatorOption {
	return func(v *Validator) {
		v.enforce = enforce
	}
}

// NewValidator builds a validator over ref. A nil ref uses the built-in lists.
func NewValidator(ref *ReferenceData, opts ...ValidatorOption) *Validator {
	if ref == nil {
		ref = DefaultReferenceData()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v := &Validator{validate: validate, ref: ref, enforce: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Reference returns the lists the validator checks against.
func (v *Validator) Reference() *ReferenceData {
	return v.ref
}

// Validate normalizes in and checks every rule, reporting all failing fields
// together. On success it returns the normalized intake.
func (v *Validator) Validate(in models.Intake) (*models.Intake, error) {
	out := Normalize(in)

	fields := make(map[string]string)
	s := submission{
		FirstName:            out.FirstName,
		LastName:             out.LastName,
		Email:                out.Email,
		LinkedInProfile:      out.LinkedInProfile,
		CountryOfCitizenship: out.CountryOfCitizenship,
		VisasOfInterest:      out.VisasOfInterest,
		ResumeURL:            out.ResumeURL,
	}
	if err := v.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate submission")
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessages[fe.Field()]
		}
	}

	if v.enforce {
		v.checkMembership(out, fields)
	}

	if len(fields) > 0 {
		return nil, dErrors.Validation(invalidSubmissionMessage, fields)
	}
	return &out, nil
}

// ValidateLead re-checks a full record.
func (v *Validator) ValidateLead(l *models.Lead) (*models.Intake, error) {
	return v.Validate(FromLead(l))
}

// ValidatePatch merges p onto current and validates the result. Only fields
// the patch touches can fail, so a record that predates a rule change can
// still be patched elsewhere. Returns the normalized merged intake.
func (v *Validator) ValidatePatch(current *models.Lead, p models.Patch) (*models.Intake, error) {
	merged := current.Clone()
	p.ApplyFields(merged)
	normalized := Normalize(FromLead(merged))

	_, err := v.Validate(normalized)
	if err == nil {
		return &normalized, nil
	}
	all := dErrors.FieldErrors(err)
	if all == nil {
		return nil, err
	}
	touched := patchedFields(p)
	fields := make(map[string]string)
	for name, msg := range all {
		if _, ok := touched[name]; ok {
			fields[name] = msg
		}
	}
	if len(fields) > 0 {
		return nil, dErrors.Validation(invalidSubmissionMessage, fields)
	}
	return &normalized, nil
}

// patchedFields names the validator fields a patch sets.
func patchedFields(p models.Patch) map[string]struct{} {
	touched := make(map[string]struct{})
	mark := func(set bool, name string) {
		if set {
			touched[name] = struct{}{}
		}
	}
	mark(p.FirstName != nil, "firstName")
	mark(p.LastName != nil, "lastName")
	mark(p.Email != nil, "email")
	mark(p.LinkedInProfile != nil, "linkedinProfile")
	mark(p.CountryOfCitizenship != nil, "countryOfCitizenship")
	mark(p.VisasOfInterest != nil, "visasOfInterest")
	mark(p.ResumeURL != nil, "resume")
	return touched
}

func (v *Validator) checkMembership(in models.Intake, fields map[string]string) {
	if _, failed := fields["countryOfCitizenship"]; !failed && !v.ref.HasCountry(in.CountryOfCitizenship) {
		fields["countryOfCitizenship"] = fieldMessages["countryOfCitizenship"]
	}
	if _, failed := fields["visasOfInterest"]; failed {
		return
	}
	for _, visa := range in.VisasOfInterest {
		if !v.ref.HasVisa(visa) {
			fields["visasOfInterest"] = "Unknown visa type: " + visa + "."
			return
		}
	}
}

// Normalize trims every string and drops blank and repeated visa ids, keeping
// first-seen order.
func Normalize(in models.Intake) models.Intake {
	out := models.Intake{
		FirstName:            strings.TrimSpace(in.FirstName),
		LastName:             strings.TrimSpace(in.LastName),
		Email:                strings.TrimSpace(in.Email),
		LinkedInProfile:      strings.TrimSpace(in.LinkedInProfile),
		CountryOfCitizenship: strings.TrimSpace(in.CountryOfCitizenship),
		ResumeURL:            strings.TrimSpace(in.ResumeURL),
		AdditionalInfo:       strings.TrimSpace(in.AdditionalInfo),
	}
	seen := make(map[string]struct{}, len(in.VisasOfInterest))
	for _, visa := range in.VisasOfInterest {
		visa = strings.TrimSpace(visa)
		if visa == "" {
			continue
		}
		if _, dup := seen[visa]; dup {
			continue
		}
		seen[visa] = struct{}{}
		out.VisasOfInterest = append(out.VisasOfInterest, visa)
	}
	return out
}

// FromLead extracts the intake-shaped fields of a record.
func FromLead(l *models.Lead) models.Intake {
	return models.Intake{
		FirstName:            l.FirstName,
		LastName:             l.LastName,
		Email:                l.Email,
		LinkedInProfile:      l.LinkedInProfile,
		CountryOfCitizenship: l.CountryOfCitizenship,
		VisasOfInterest:      l.VisasOfInterest,
		ResumeURL:            l.ResumeURL,
		AdditionalInfo:       l.AdditionalInfo,
	}
}
