package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"go.uber.org/zap"
)

// DefaultTemplates are installed at startup when no template with the same
// key exists. Edited copies in the store are never overwritten.
func DefaultTemplates() []domain.Template {
	return []domain.Template{
		{
			Key:          "gathering_reminder",
			Title:        "{{gatheringTitle}} starts soon",
			Body:         "See you at {{gatheringLocation}} on {{gatheringDate}} at {{gatheringTime}}.",
			EmailSubject: "Reminder: {{gatheringTitle}} on {{gatheringDate}}",
			Defaults:     map[string]string{"gatheringLocation": "the usual place"},
		},
		{
			Key:   "gathering_updated",
			Title: "{{gatheringTitle}} has changed",
			Body:  "Check the new details: {{gatheringLocation}}, {{gatheringDate}} {{gatheringTime}}.",
		},
		{
			Key:          "candidate_announcement",
			Title:        "Meet {{candidateName}}",
			Body:         "{{candidateName}} is standing for {{candidatePosition}}.",
			EmailSubject: "New candidate for {{candidatePosition}}",
		},
	}
}

// SeedTemplates makes sure every template in templates exists and returns how
// many were inserted.
func SeedTemplates(ctx context.Context, repo repository.TemplateRepository, templates []domain.Template, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	inserted := 0
	for i := range templates {
		stored, created, err := repo.EnsureTemplate(ctx, &templates[i])
		if err != nil {
			return inserted, fmt.Errorf("failed to ensure template %q: %w", templates[i].Key, err)
		}
		if created {
			inserted++
			logger.Info("template installed", zap.String("templateKey", stored.Key))
		}
	}
	return inserted, nil
}
