package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"gorm.io/gorm"
)

// DirectoryRepository is the read-only view of community data used to
// resolve recipients and dynamic template variables.
type DirectoryRepository interface {
	ContactsByUserIDs(ctx context.Context, userIDs []string) ([]domain.Contact, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	RSVPUserIDs(ctx context.Context, gatheringID string, status domain.RSVPStatus) ([]string, error)
	GatheringByID(ctx context.Context, id string) (*domain.Gathering, error)
	CandidateByID(ctx context.Context, id string) (*domain.Candidate, error)
}

type GormDirectoryRepo struct {
	db *gorm.DB
}

func NewGormDirectoryRepo(db *gorm.DB) *GormDirectoryRepo {
	return &GormDirectoryRepo{db: db}
}

// ContactsByUserIDs returns one contact per known user id. Unknown ids are
// simply absent from the result.
func (r *GormDirectoryRepo) ContactsByUserIDs(ctx context.Context, userIDs []string) ([]domain.Contact, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var users []UserModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	var tokens []PushTokenModel
	if err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at ASC").
		Find(&tokens).Error; err != nil {
		return nil, err
	}

	tokensByUser := make(map[string][]string, len(users))
	for _, token := range tokens {
		value := strings.TrimSpace(token.Token)
		if value == "" {
			continue
		}
		tokensByUser[token.UserID] = append(tokensByUser[token.UserID], value)
	}

	contacts := make([]domain.Contact, 0, len(users))
	for _, user := range users {
		contact := domain.Contact{
			UserID:     user.ID,
			Name:       user.DisplayName,
			PushTokens: tokensByUser[user.ID],
		}
		if user.Email != nil {
			contact.Email = strings.TrimSpace(*user.Email)
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func (r *GormDirectoryRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	if err := r.ensureExists(ctx, &GroupModel{}, "group", groupID); err != nil {
		return nil, err
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&GroupMemberModel{}).
		Where("group_id = ?", groupID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormDirectoryRepo) RSVPUserIDs(ctx context.Context, gatheringID string, status domain.RSVPStatus) ([]string, error) {
	if err := r.ensureExists(ctx, &GatheringModel{}, "gathering", gatheringID); err != nil {
		return nil, err
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&RSVPModel{}).
		Where("gathering_id = ? AND status = ?", gatheringID, status).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormDirectoryRepo) GatheringByID(ctx context.Context, id string) (*domain.Gathering, error) {
	var model GatheringModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.Gathering{
		ID:       model.ID,
		GroupID:  model.GroupID,
		Title:    model.Title,
		Location: model.Location,
		StartsAt: model.StartsAt,
	}, nil
}

func (r *GormDirectoryRepo) CandidateByID(ctx context.Context, id string) (*domain.Candidate, error) {
	var model CandidateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.Candidate{
		ID:       model.ID,
		GroupID:  model.GroupID,
		Name:     model.Name,
		Position: model.Position,
	}, nil
}

func (r *GormDirectoryRepo) ensureExists(ctx context.Context, model any, label string, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %q", domain.ErrUnknownScope, label, id)
	}
	return nil
}
