package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/provider"
	"github.com/kursadbilgin/community-notify/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultEmailTemplateID int64 = 1

// emailTarget is one address and every recipient that shares it. The first
// recipient's name personalizes the message.
type emailTarget struct {
	userIDs []string
	name    string
	email   string
}

type EmailDispatcher struct {
	gateway           provider.EmailGateway
	limiter           ratelimit.RateLimiter
	defaultTemplateID int64
	sender            provider.EmailAddress
	timeout           time.Duration
	logger            *zap.Logger
	metrics           *observability.Metrics
}

var _ ChannelSender = (*EmailDispatcher)(nil)

type EmailDispatcherOptions struct {
	DefaultTemplateID int64
	SenderName        string
	SenderEmail       string
	Timeout           time.Duration
}

func NewEmailDispatcher(
	gateway provider.EmailGateway,
	limiter ratelimit.RateLimiter,
	opts EmailDispatcherOptions,
	logger *zap.Logger,
) (*EmailDispatcher, error) {
	if gateway == nil {
		return nil, fmt.Errorf("email gateway is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if opts.DefaultTemplateID <= 0 {
		opts.DefaultTemplateID = defaultEmailTemplateID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailDispatcher{
		gateway:           gateway,
		limiter:           limiter,
		defaultTemplateID: opts.DefaultTemplateID,
		sender: provider.EmailAddress{
			Email: strings.TrimSpace(opts.SenderEmail),
			Name:  strings.TrimSpace(opts.SenderName),
		},
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

func (d *EmailDispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Send issues one templated request per gateway-sized chunk. A rejected
// request fails every recipient it carried; per-recipient results are used
// when the gateway returns them.
func (d *EmailDispatcher) Send(
	ctx context.Context,
	content domain.RenderedContent,
	recipients []domain.Contact,
	decoration domain.Decoration,
) domain.ChannelOutcome {
	outcome := domain.NewChannelOutcome(domain.ChannelEmail)
	outcome.Attempted = true

	targets := make([]emailTarget, 0, len(recipients))
	seen := make(map[string]int)
	for _, recipient := range recipients {
		if !recipient.HasEmail() {
			outcome.RecordFailure(domain.RecipientFailure{
				UserID:  recipient.UserID,
				Reason:  domain.ReasonNoEmailAddress,
				Message: "recipient has no email address",
			})
			continue
		}
		email := strings.TrimSpace(recipient.Email)
		key := strings.ToLower(email)
		if idx, ok := seen[key]; ok {
			if !slices.Contains(targets[idx].userIDs, recipient.UserID) {
				targets[idx].userIDs = append(targets[idx].userIDs, recipient.UserID)
			}
			continue
		}
		seen[key] = len(targets)
		targets = append(targets, emailTarget{userIDs: []string{recipient.UserID}, name: recipient.Name, email: email})
	}

	outcome.AttemptedCount = len(targets)
	if len(targets) == 0 {
		return outcome
	}

	size := d.gateway.MaxRecipients()
	if size <= 0 {
		size = len(targets)
	}
	for start := 0; start < len(targets); start += size {
		chunk := targets[start:min(start+size, len(targets))]
		d.sendChunk(ctx, &outcome, d.buildRequest(content, decoration), chunk)
	}

	return outcome
}

func (d *EmailDispatcher) sendChunk(ctx context.Context, outcome *domain.ChannelOutcome, req provider.EmailSendRequest, chunk []emailTarget) {
	if err := waitWithTimeout(ctx, d.limiter, domain.ChannelEmail, len(chunk), d.timeout); err != nil {
		failEmailChunk(outcome, chunk, reasonForError(err), fmt.Sprintf("rate limiter: %v", err))
		return
	}

	req.Recipients = make([]provider.EmailRecipient, len(chunk))
	for i, target := range chunk {
		params := map[string]string{}
		if target.name != "" {
			params["name"] = target.name
		}
		req.Recipients[i] = provider.EmailRecipient{Email: target.email, Name: target.name, Params: params}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.gateway.SendTemplate(callCtx, req)
	d.metrics.ObserveProviderCall(domain.ChannelEmail.Key(), time.Since(start))
	if err != nil {
		d.logger.Warn("email send rejected",
			zap.Int("size", len(chunk)),
			zap.Int64("templateId", req.TemplateID),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		failEmailChunk(outcome, chunk, reasonForError(err), err.Error())
		return
	}
	if resp == nil {
		resp = &provider.EmailSendResponse{}
	}

	if len(resp.Results) == 0 {
		receiptID := ""
		if len(resp.MessageIDs) == 1 {
			receiptID = resp.MessageIDs[0]
		}
		for _, target := range chunk {
			recordEmailSuccess(outcome, target, receiptID)
		}
		return
	}

	for i, target := range chunk {
		if i >= len(resp.Results) {
			recordEmailFailure(outcome, target, domain.ReasonUnknownError, "no result for recipient")
			continue
		}
		result := resp.Results[i]
		if result.Accepted {
			recordEmailSuccess(outcome, target, result.MessageID)
			continue
		}
		recordEmailFailure(outcome, target, domain.Reason(strings.TrimSpace(result.Reason)), "rejected by email gateway")
	}
}

func (d *EmailDispatcher) buildRequest(content domain.RenderedContent, decoration domain.Decoration) provider.EmailSendRequest {
	deco := decoration.Email

	templateID := deco.TemplateID
	if templateID <= 0 {
		templateID = d.defaultTemplateID
	}

	sender := d.sender
	if email := strings.TrimSpace(deco.SenderEmail); email != "" {
		sender = provider.EmailAddress{Email: email, Name: strings.TrimSpace(deco.SenderName)}
	} else if name := strings.TrimSpace(deco.SenderName); name != "" {
		sender.Name = name
	}

	params := map[string]any{
		"subject": content.Subject,
		"body":    content.PrimaryBody,
	}
	if content.SecondaryBody != "" {
		params["subtitle"] = content.SecondaryBody
	}
	if link := strings.TrimSpace(decoration.DeepLink); link != "" {
		params["link"] = link
	}
	if image := strings.TrimSpace(deco.ImageURL); image != "" {
		params["imageUrl"] = image
	}
	if len(decoration.Buttons) > 0 {
		buttons := make([]map[string]string, 0, len(decoration.Buttons))
		for _, b := range decoration.Buttons {
			buttons = append(buttons, map[string]string{"label": b.Label, "url": b.URL})
		}
		params["buttons"] = buttons
	}

	var headers map[string]string
	if unsubscribe := strings.TrimSpace(deco.UnsubscribeURL); unsubscribe != "" {
		params["unsubscribeUrl"] = unsubscribe
		headers = map[string]string{"List-Unsubscribe": "<" + unsubscribe + ">"}
	}

	return provider.EmailSendRequest{
		TemplateID: templateID,
		Sender:     sender,
		ReplyTo:    strings.TrimSpace(deco.ReplyTo),
		Params:     params,
		Headers:    headers,
	}
}

func failEmailChunk(outcome *domain.ChannelOutcome, chunk []emailTarget, reason domain.Reason, message string) {
	for _, target := range chunk {
		recordEmailFailure(outcome, target, reason, message)
	}
}

func recordEmailSuccess(outcome *domain.ChannelOutcome, target emailTarget, receiptID string) {
	for _, userID := range target.userIDs {
		outcome.RecordSuccess(domain.Delivery{UserID: userID, Endpoint: target.email, ReceiptID: receiptID})
	}
}

func recordEmailFailure(outcome *domain.ChannelOutcome, target emailTarget, reason domain.Reason, message string) {
	for _, userID := range target.userIDs {
		outcome.RecordFailure(domain.RecipientFailure{
			UserID:   userID,
			Endpoint: target.email,
			Reason:   reason,
			Message:  message,
		})
	}
}
