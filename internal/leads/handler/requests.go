package handler

import (
	"encoding/json"
	"mime/multipart"
	"strings"

	"leadtriage/internal/leads/models"
	dErrors "leadtriage/pkg/domain-errors"
)

// SubmitRequest is the body of POST /leads. Multipart submissions are decoded
// into the same shape, with ResumeURL filled after the upload is stored.
type SubmitRequest struct {
	FirstName            string   `json:"firstName"`
	LastName             string   `json:"lastName"`
	Email                string   `json:"email"`
	LinkedInProfile      string   `json:"linkedinProfile"`
	CountryOfCitizenship string   `json:"countryOfCitizenship"`
	VisasOfInterest      []string `json:"visasOfInterest"`
	ResumeURL            string   `json:"resumeUrl"`
	AdditionalInfo       string   `json:"additionalInfo"`
}

// ToIntake converts the request to a domain intake. Field rules are enforced
// by the service so every failing field is reported at once.
func (r SubmitRequest) ToIntake() models.Intake {
	return models.Intake{
		FirstName:            r.FirstName,
		LastName:             r.LastName,
		Email:                r.Email,
		LinkedInProfile:      r.LinkedInProfile,
		CountryOfCitizenship: r.CountryOfCitizenship,
		VisasOfInterest:      r.VisasOfInterest,
		ResumeURL:            r.ResumeURL,
		AdditionalInfo:       r.AdditionalInfo,
	}
}

// submitRequestFromForm reads the text fields of a multipart submission.
// visasOfInterest is either repeated or a single JSON array string.
func submitRequestFromForm(form *multipart.Form) (*SubmitRequest, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	visas, err := parseVisas(form.Value["visasOfInterest"])
	if err != nil {
		return nil, err
	}
	return &SubmitRequest{
		FirstName:            value("firstName"),
		LastName:             value("lastName"),
		Email:                value("email"),
		LinkedInProfile:      value("linkedinProfile"),
		CountryOfCitizenship: value("countryOfCitizenship"),
		VisasOfInterest:      visas,
		ResumeURL:            value("resumeUrl"),
		AdditionalInfo:       value("additionalInfo"),
	}, nil
}

func parseVisas(values []string) ([]string, error) {
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var visas []string
		if err := json.Unmarshal([]byte(values[0]), &visas); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "visasOfInterest must be a JSON array of strings")
		}
		return visas, nil
	}
	return values, nil
}

// PatchRequest is the body of PATCH /leads/{id}. Absent fields are left
// untouched; id and submittedAt are not accepted and are ignored if sent.
type PatchRequest struct {
	FirstName            *string   `json:"firstName"`
	LastName             *string   `json:"lastName"`
	Email                *string   `json:"email"`
	LinkedInProfile      *string   `json:"linkedinProfile"`
	CountryOfCitizenship *string   `json:"countryOfCitizenship"`
	VisasOfInterest      *[]string `json:"visasOfInterest"`
	ResumeURL            *string   `json:"resumeUrl"`
	AdditionalInfo       *string   `json:"additionalInfo"`
	Status               *string   `json:"status"`

	parsedStatus *models.Status
}

// Validate parses the status. Implements httputil.Validatable.
func (r *PatchRequest) Validate() error {
	if r.Status == nil {
		return nil
	}
	status, err := models.ParseStatus(*r.Status)
	if err != nil {
		return dErrors.Validation("Invalid lead update", map[string]string{
			"status": "Status must be PENDING or REACHED_OUT",
		})
	}
	r.parsedStatus = &status
	return nil
}

// ToPatch converts the request to a domain patch.
func (r *PatchRequest) ToPatch() models.Patch {
	p := models.Patch{
		FirstName:            r.FirstName,
		LastName:             r.LastName,
		Email:                r.Email,
		LinkedInProfile:      r.LinkedInProfile,
		CountryOfCitizenship: r.CountryOfCitizenship,
		ResumeURL:            r.ResumeURL,
		AdditionalInfo:       r.AdditionalInfo,
		Status:               r.parsedStatus,
	}
	if r.VisasOfInterest != nil {
		p.VisasOfInterest = *r.VisasOfInterest
		if p.VisasOfInterest == nil {
			p.VisasOfInterest = []string{}
		}
	}
	return p
}
