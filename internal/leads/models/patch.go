package models

import "slices"

// Patch is a partial update. Nil fields are left untouched. There is no way to
// express a change to ID or SubmittedAt.
type Patch struct {
	FirstName            *string
	LastName             *string
	Email                *string
	LinkedInProfile      *string
	CountryOfCitizenship *string
	VisasOfInterest      []string
	ResumeURL            *string
	AdditionalInfo       *string
	Status               *Status
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.LinkedInProfile == nil && p.CountryOfCitizenship == nil &&
		p.VisasOfInterest == nil && p.ResumeURL == nil &&
		p.AdditionalInfo == nil && p.Status == nil
}

// ApplyFields merges the non-status fields into l. Status goes through
// CanTransitionTo/ApplyStatus.
func (p Patch) ApplyFields(l *Lead) {
	if p.FirstName != nil {
		l.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		l.LastName = *p.LastName
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.LinkedInProfile != nil {
		l.LinkedInProfile = *p.LinkedInProfile
	}
	if p.CountryOfCitizenship != nil {
		l.CountryOfCitizenship = *p.CountryOfCitizenship
	}
	if p.VisasOfInterest != nil {
		l.VisasOfInterest = slices.Clone(p.VisasOfInterest)
	}
	if p.ResumeURL != nil {
		l.ResumeURL = *p.ResumeURL
	}
	if p.AdditionalInfo != nil {
		l.AdditionalInfo = *p.AdditionalInfo
	}
}
