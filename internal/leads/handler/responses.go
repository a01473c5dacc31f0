package handler

import (
	"time"

	"leadtriage/internal/leads/intake"
	"leadtriage/internal/leads/models"
)

// LeadResponse is the wire form of a lead.
type LeadResponse struct {
	ID                   string    `json:"id"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	Email                string    `json:"email"`
	LinkedInProfile      string    `json:"linkedinProfile"`
	CountryOfCitizenship string    `json:"countryOfCitizenship"`
	VisasOfInterest      []string  `json:"visasOfInterest"`
	ResumeURL            string    `json:"resumeUrl"`
	AdditionalInfo       string    `json:"additionalInfo,omitempty"`
	Status               string    `json:"status"`
	SubmittedAt          time.Time `json:"submittedAt"`
}

// ReferenceResponse carries the intake form options.
type ReferenceResponse struct {
	Countries []intake.Option `json:"countries"`
	Visas     []intake.Option `json:"visas"`
}

func FromLead(l *models.Lead) LeadResponse {
	visas := l.VisasOfInterest
	if visas == nil {
		visas = []string{}
	}
	return LeadResponse{
		ID:                   l.ID,
		FirstName:            l.FirstName,
		LastName:             l.LastName,
		Email:                l.Email,
		LinkedInProfile:      l.LinkedInProfile,
		CountryOfCitizenship: l.CountryOfCitizenship,
		VisasOfInterest:      visas,
		ResumeURL:            l.ResumeURL,
		AdditionalInfo:       l.AdditionalInfo,
		Status:               l.Status.String(),
		SubmittedAt:          l.SubmittedAt,
	}
}

// FromLeads never returns a nil slice so an empty result encodes as [].
func FromLeads(leads []*models.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, FromLead(l))
	}
	return out
}

func FromReference(ref *intake.ReferenceData) ReferenceResponse {
	return ReferenceResponse{Countries: ref.Countries, Visas: ref.Visas}
}
