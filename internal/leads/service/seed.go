package service

import (
	"context"
	"fmt"
	"time"

	"leadtriage/internal/leads/models"
)

// demoLeads mirrors the sample records the dashboard shipped with. Their
// resumes live outside the upload store, which only serves files it wrote.
var demoLeads = []struct {
	intake     models.Intake
	daysAgo    int
	reachedOut bool
}{
	{
		intake: models.Intake{
			FirstName:            "Jorge",
			LastName:             "Ruiz",
			Email:                "jorge.ruiz@example.com",
			LinkedInProfile:      "https://linkedin.com/in/jorgeruiz",
			CountryOfCitizenship: "MX",
			VisasOfInterest:      []string{"O1"},
			ResumeURL:            "https://files.example.com/resumes/sample-jorge.pdf",
		},
		daysAgo: 6,
	},
	{
		intake: models.Intake{
			FirstName:            "Bahar",
			LastName:             "Zamir",
			Email:                "bahar.zamir@example.com",
			LinkedInProfile:      "https://linkedin.com/in/baharzamir",
			CountryOfCitizenship: "IR",
			VisasOfInterest:      []string{"EB1A", "EB2NIW"},
			ResumeURL:            "https://files.example.com/resumes/sample-bahar.pdf",
			AdditionalInfo:       "Published researcher, looking for a self-petition route.",
		},
		daysAgo:    5,
		reachedOut: true,
	},
	{
		intake: models.Intake{
			FirstName:            "Mark",
			LastName:             "Nguyen",
			Email:                "mark.nguyen@example.com",
			LinkedInProfile:      "https://linkedin.com/in/marknguyen",
			CountryOfCitizenship: "VN",
			VisasOfInterest:      []string{"H1B"},
			ResumeURL:            "https://files.example.com/resumes/sample-mark.pdf",
		},
		daysAgo: 3,
	},
	{
		intake: models.Intake{
			FirstName:            "Iskhak",
			LastName:             "Bekov",
			Email:                "iskhak.bekov@example.com",
			LinkedInProfile:      "https://linkedin.com/in/iskhakbekov",
			CountryOfCitizenship: "KZ",
			VisasOfInterest:      []string{"O1", "UNKNOWN"},
			ResumeURL:            "https://files.example.com/resumes/sample-iskhak.pdf",
		},
		daysAgo:    1,
		reachedOut: true,
	},
}

// SeedDemoLeads loads sample leads into an empty store and reports how many
// were created. A store that already holds leads is left alone.
func (s *Service) SeedDemoLeads(ctx context.Context, now time.Time) (int, error) {
	existing, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: list leads: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for _, demo := range demoLeads {
		lead, err := models.NewLead(s.newID(), demo.intake, now.AddDate(0, 0, -demo.daysAgo))
		if err != nil {
			return 0, fmt.Errorf("seed: %w", err)
		}
		if demo.reachedOut {
			lead.ApplyStatus(models.StatusReachedOut)
		}
		if err := s.store.Create(ctx, lead); err != nil {
			return 0, fmt.Errorf("seed: create lead: %w", err)
		}
	}
	return len(demoLeads), nil
}
