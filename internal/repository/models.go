package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
)

// WorkflowModel is the persistence model for the workflows table.
type WorkflowModel struct {
	ID          string                `gorm:"type:uuid;primaryKey"`
	Kind        string                `gorm:"type:varchar(64);not null"`
	Status      domain.WorkflowStatus `gorm:"type:varchar(20);not null"`
	GatheringID *string               `gorm:"type:varchar(64)"`
	CandidateID *string               `gorm:"type:varchar(64)"`
	InitiatedBy string                `gorm:"type:varchar(255);not null;default:''"`
	Payload     string                `gorm:"type:text;not null"`
	Result      *string               `gorm:"type:text"`
	Error       *string               `gorm:"type:text"`
	ScheduledAt time.Time             `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (WorkflowModel) TableName() string {
	return "workflows"
}

// DeliveryReceiptModel is the persistence model for delivery_receipts.
type DeliveryReceiptModel struct {
	ID         string         `gorm:"type:uuid;primaryKey"`
	WorkflowID *string        `gorm:"type:uuid"`
	Channel    domain.Channel `gorm:"type:varchar(10);not null"`
	UserID     string         `gorm:"type:varchar(64);not null"`
	Endpoint   string         `gorm:"type:varchar(255);not null"`
	ReceiptID  string         `gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time
}

func (DeliveryReceiptModel) TableName() string {
	return "delivery_receipts"
}

// TemplateModel is the persistence model for notification_templates.
type TemplateModel struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	Key          string  `gorm:"column:template_key;type:varchar(128);not null;uniqueIndex:idx_templates_key"`
	Title        string  `gorm:"type:text;not null;default:''"`
	Body         string  `gorm:"type:text;not null;default:''"`
	Subtitle     string  `gorm:"type:text;not null;default:''"`
	EmailSubject *string `gorm:"type:text"`
	EmailBody    *string `gorm:"type:text"`
	Defaults     *string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TemplateModel) TableName() string {
	return "notification_templates"
}

// UserModel mirrors the community users table.
type UserModel struct {
	ID          string  `gorm:"type:varchar(64);primaryKey"`
	DisplayName string  `gorm:"type:varchar(255);not null;default:''"`
	Email       *string `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// PushTokenModel stores one device token per row.
type PushTokenModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:varchar(64);not null;index:idx_push_tokens_user_id"`
	Token     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_push_tokens_token"`
	CreatedAt time.Time
}

func (PushTokenModel) TableName() string {
	return "push_tokens"
}

// GroupModel is a community group.
type GroupModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time
}

func (GroupModel) TableName() string {
	return "community_groups"
}

// GroupMemberModel links users to groups.
type GroupMemberModel struct {
	GroupID   string `gorm:"type:varchar(64);primaryKey"`
	UserID    string `gorm:"type:varchar(64);primaryKey"`
	CreatedAt time.Time
}

func (GroupMemberModel) TableName() string {
	return "group_members"
}

// GatheringModel is an event of a group.
type GatheringModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	GroupID   string    `gorm:"type:varchar(64);not null"`
	Title     string    `gorm:"type:varchar(255);not null"`
	Location  string    `gorm:"type:varchar(255);not null;default:''"`
	StartsAt  time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (GatheringModel) TableName() string {
	return "gatherings"
}

// RSVPModel is one member's response to a gathering.
type RSVPModel struct {
	GatheringID string            `gorm:"type:varchar(64);primaryKey"`
	UserID      string            `gorm:"type:varchar(64);primaryKey"`
	Status      domain.RSVPStatus `gorm:"type:varchar(20);not null"`
	UpdatedAt   time.Time
}

func (RSVPModel) TableName() string {
	return "gathering_rsvps"
}

// CandidateModel is a person standing in a group selection.
type CandidateModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	GroupID   string `gorm:"type:varchar(64);not null"`
	Name      string `gorm:"type:varchar(255);not null"`
	Position  string `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time
}

func (CandidateModel) TableName() string {
	return "candidates"
}

// AllModels lists every table owned by this service, in creation order.
func AllModels() []any {
	return []any{
		&WorkflowModel{},
		&DeliveryReceiptModel{},
		&TemplateModel{},
		&UserModel{},
		&PushTokenModel{},
		&GroupModel{},
		&GroupMemberModel{},
		&GatheringModel{},
		&RSVPModel{},
		&CandidateModel{},
	}
}

func workflowModelFromDomain(w *domain.Workflow) *WorkflowModel {
	if w == nil {
		return nil
	}

	return &WorkflowModel{
		ID:          w.ID,
		Kind:        w.Kind,
		Status:      w.Status,
		GatheringID: w.GatheringID,
		CandidateID: w.CandidateID,
		InitiatedBy: w.InitiatedBy,
		Payload:     string(w.Payload),
		Result:      bytesToOptionalString(w.Result),
		Error:       w.Error,
		ScheduledAt: w.ScheduledAt,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func workflowModelToDomain(m *WorkflowModel) *domain.Workflow {
	if m == nil {
		return nil
	}

	w := &domain.Workflow{
		ID:          m.ID,
		Kind:        m.Kind,
		Status:      m.Status,
		GatheringID: m.GatheringID,
		CandidateID: m.CandidateID,
		InitiatedBy: m.InitiatedBy,
		Payload:     []byte(m.Payload),
		Error:       m.Error,
		ScheduledAt: m.ScheduledAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Result != nil {
		w.Result = []byte(*m.Result)
	}
	return w
}

func receiptModelFromDomain(r *domain.DeliveryReceipt) *DeliveryReceiptModel {
	if r == nil {
		return nil
	}

	return &DeliveryReceiptModel{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Channel:    r.Channel,
		UserID:     r.UserID,
		Endpoint:   r.Endpoint,
		ReceiptID:  r.ReceiptID,
		CreatedAt:  r.CreatedAt,
	}
}

func receiptModelToDomain(m *DeliveryReceiptModel) *domain.DeliveryReceipt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryReceipt{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		Channel:    m.Channel,
		UserID:     m.UserID,
		Endpoint:   m.Endpoint,
		ReceiptID:  m.ReceiptID,
		CreatedAt:  m.CreatedAt,
	}
}

func templateModelFromDomain(t *domain.Template) (*TemplateModel, error) {
	if t == nil {
		return nil, nil
	}

	model := &TemplateModel{
		ID:           t.ID,
		Key:          t.Key,
		Title:        t.Title,
		Body:         t.Body,
		Subtitle:     t.Subtitle,
		EmailSubject: stringToOptional(t.EmailSubject),
		EmailBody:    stringToOptional(t.EmailBody),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if len(t.Defaults) > 0 {
		raw, err := json.Marshal(t.Defaults)
		if err != nil {
			return nil, err
		}
		value := string(raw)
		model.Defaults = &value
	}
	return model, nil
}

func templateModelToDomain(m *TemplateModel) (*domain.Template, error) {
	if m == nil {
		return nil, nil
	}

	t := &domain.Template{
		ID:        m.ID,
		Key:       m.Key,
		Title:     m.Title,
		Body:      m.Body,
		Subtitle:  m.Subtitle,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.EmailSubject != nil {
		t.EmailSubject = *m.EmailSubject
	}
	if m.EmailBody != nil {
		t.EmailBody = *m.EmailBody
	}
	if m.Defaults != nil && *m.Defaults != "" {
		if err := json.Unmarshal([]byte(*m.Defaults), &t.Defaults); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func bytesToOptionalString(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	value := string(b)
	return &value
}

func stringToOptional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
