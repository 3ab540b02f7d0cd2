package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"go.uber.org/zap"
)

// RecipientResolution is the deduplicated set of contacts for a recipient
// spec plus the user ids that could not be matched to an account.
type RecipientResolution struct {
	Recipients []domain.Contact
	Unresolved []domain.RecipientFailure
}

type RecipientResolver struct {
	directory repository.DirectoryRepository
	timeout   time.Duration
	logger    *zap.Logger
}

func NewRecipientResolver(directory repository.DirectoryRepository, timeout time.Duration, logger *zap.Logger) (*RecipientResolver, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory repository is required")
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecipientResolver{
		directory: directory,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Resolve expands spec into contacts. Unknown groups and gatherings fail with
// ErrUnknownScope; an empty membership is a valid empty resolution.
func (r *RecipientResolver) Resolve(ctx context.Context, spec domain.RecipientSpec) (*RecipientResolution, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: recipients are required", domain.ErrInvalidRequest)
	}

	userIDs, err := r.expand(ctx, spec)
	if err != nil {
		return nil, err
	}

	userIDs = dedupeIDs(userIDs)
	if len(userIDs) == 0 {
		return &RecipientResolution{}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	contacts, err := r.directory.ContactsByUserIDs(lookupCtx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	byID := make(map[string]domain.Contact, len(contacts))
	for _, c := range contacts {
		if existing, ok := byID[c.UserID]; ok {
			c = existing.Merge(c)
		}
		byID[c.UserID] = c
	}

	resolution := &RecipientResolution{
		Recipients: make([]domain.Contact, 0, len(byID)),
	}
	for _, id := range userIDs {
		contact, ok := byID[id]
		if !ok {
			resolution.Unresolved = append(resolution.Unresolved, domain.RecipientFailure{
				UserID:  id,
				Reason:  domain.ReasonUnknownUser,
				Message: "no account matches this user id",
			})
			continue
		}
		resolution.Recipients = append(resolution.Recipients, contact)
	}

	if len(resolution.Unresolved) > 0 {
		r.logger.Warn("recipients without a matching account",
			zap.String("kind", string(spec.Kind())),
			zap.Int("count", len(resolution.Unresolved)),
		)
	}

	return resolution, nil
}

func (r *RecipientResolver) expand(ctx context.Context, spec domain.RecipientSpec) ([]string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch s := spec.(type) {
	case domain.ExplicitRecipients:
		return s.UserIDs, nil
	case domain.RSVPRecipients:
		ids, err := r.directory.RSVPUserIDs(lookupCtx, strings.TrimSpace(s.GatheringID), s.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rsvp recipients: %w", err)
		}
		return ids, nil
	case domain.GroupRecipients:
		ids, err := r.directory.MemberIDs(lookupCtx, strings.TrimSpace(s.GroupID))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group recipients: %w", err)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: unsupported recipient kind %q", domain.ErrInvalidRequest, spec.Kind())
	}
}

// dedupeIDs trims ids and drops blanks and repeats, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
