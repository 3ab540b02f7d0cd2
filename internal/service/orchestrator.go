package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrchestrationState names a step of one send.
type OrchestrationState string

const (
	StateValidating          OrchestrationState = "Validating"
	StateResolvingRecipients OrchestrationState = "ResolvingRecipients"
	StateRenderingContent    OrchestrationState = "RenderingContent"
	StateDispatching         OrchestrationState = "Dispatching"
	StateAggregating         OrchestrationState = "Aggregating"
	StateDone                OrchestrationState = "Done"
	StateFailed              OrchestrationState = "Failed"
)

const noRecipientsMessage = "no recipients"

// Notifier runs send intents. Check performs only the validation step.
type Notifier interface {
	Check(ctx context.Context, req domain.Request) error
	Orchestrate(ctx context.Context, req domain.Request) (domain.Result, error)
}

type contentRenderer interface {
	Prepare(ctx context.Context, spec domain.ContentSpec) (*PreparedContent, error)
	Render(ctx context.Context, prepared *PreparedContent) (domain.Rendered, error)
}

type recipientLookup interface {
	Resolve(ctx context.Context, spec domain.RecipientSpec) (*RecipientResolution, error)
}

// Orchestrator drives one request through validation, recipient resolution,
// rendering and dispatch, and folds the channel outcomes into one result.
// Request, scope and content errors are returned before anything is sent;
// delivery problems are part of the result.
type Orchestrator struct {
	content    contentRenderer
	recipients recipientLookup
	push       ChannelSender
	email      ChannelSender
	logger     *zap.Logger
	metrics    *observability.Metrics
}

var _ Notifier = (*Orchestrator)(nil)

func NewOrchestrator(
	content *ContentResolver,
	recipients *RecipientResolver,
	push ChannelSender,
	email ChannelSender,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if content == nil {
		return nil, fmt.Errorf("content resolver is required")
	}
	if recipients == nil {
		return nil, fmt.Errorf("recipient resolver is required")
	}
	if push == nil || email == nil {
		return nil, fmt.Errorf("push and email senders are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		content:    content,
		recipients: recipients,
		push:       push,
		email:      email,
		logger:     logger,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

func (o *Orchestrator) Check(ctx context.Context, req domain.Request) error {
	_, err := o.validate(ctx, req)
	return err
}

func (o *Orchestrator) Orchestrate(ctx context.Context, req domain.Request) (domain.Result, error) {
	logger := observability.WithContextLogger(o.logger, ctx).With(zap.String("mode", req.Mode.String()))

	result, err := o.run(ctx, req, logger)
	if err != nil {
		logger.Info("orchestration failed", zap.String("state", string(StateFailed)), zap.Error(err))
		o.metrics.IncOrchestration(req.Mode.String(), outcomeLabelForError(err))
		return domain.Result{}, err
	}

	logger.Debug("orchestration done",
		zap.String("state", string(StateDone)),
		zap.Bool("success", result.Success),
		zap.String("summary", result.Message),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req domain.Request, logger *zap.Logger) (domain.Result, error) {
	enter(logger, StateValidating)
	prepared, err := o.validate(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}

	enter(logger, StateResolvingRecipients)
	resolution, err := o.recipients.Resolve(ctx, req.Recipients)
	if err != nil {
		return domain.Result{}, err
	}
	if len(resolution.Recipients) == 0 {
		result := domain.NewEmptyResult(noRecipientsMessage)
		result.Unresolved = resolution.Unresolved
		o.metrics.IncOrchestration(req.Mode.String(), "no_recipients")
		return result, nil
	}

	enter(logger, StateRenderingContent)
	rendered, err := o.content.Render(ctx, prepared)
	if err != nil {
		return domain.Result{}, err
	}

	enter(logger, StateDispatching)
	push, email := o.dispatch(ctx, req, rendered, resolution.Recipients, logger)

	enter(logger, StateAggregating)
	result := domain.Result{
		Push:       push,
		Email:      email,
		Unresolved: resolution.Unresolved,
	}
	result.Summarize()
	o.record(logger, req, result)

	return result, nil
}

func (o *Orchestrator) validate(ctx context.Context, req domain.Request) (*PreparedContent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return o.content.Prepare(ctx, req.Content)
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	req domain.Request,
	rendered domain.Rendered,
	recipients []domain.Contact,
	logger *zap.Logger,
) (domain.ChannelOutcome, domain.ChannelOutcome) {
	push := domain.NewChannelOutcome(domain.ChannelPush)
	email := domain.NewChannelOutcome(domain.ChannelEmail)

	switch req.Mode {
	case domain.ModeBoth:
		var g errgroup.Group
		g.Go(func() error {
			push = o.push.Send(ctx, rendered.Push, recipients, req.Decoration)
			return nil
		})
		g.Go(func() error {
			email = o.email.Send(ctx, rendered.Email, recipients, req.Decoration)
			return nil
		})
		_ = g.Wait()
	case domain.ModePushPreferred:
		push = o.push.Send(ctx, rendered.Push, recipients, req.Decoration)
		if push.Succeeded > 0 {
			break
		}
		fallback := withEmail(recipients)
		if len(fallback) == 0 {
			logger.Info("push delivered nothing and no recipient has an email address")
			break
		}
		logger.Info("push delivered nothing, falling back to email", zap.Int("recipients", len(fallback)))
		email = o.email.Send(ctx, rendered.Email, fallback, req.Decoration)
	}

	return push, email
}

func (o *Orchestrator) record(logger *zap.Logger, req domain.Request, result domain.Result) {
	for _, outcome := range []domain.ChannelOutcome{result.Push, result.Email} {
		if !outcome.Attempted {
			continue
		}
		channel := outcome.Channel.Key()
		o.metrics.AddRecipientsDelivered(channel, outcome.Succeeded)
		for _, f := range outcome.Failures {
			o.metrics.IncRecipientFailed(channel, f.Reason.String())
			logger.Warn("recipient delivery failed",
				zap.String("channel", channel),
				zap.String("userId", f.UserID),
				zap.String("reason", f.Reason.String()),
				zap.String("detail", f.Message),
			)
		}
	}

	outcome := "success"
	if !result.Success {
		outcome = "undelivered"
	}
	o.metrics.IncOrchestration(req.Mode.String(), outcome)
}

func withEmail(recipients []domain.Contact) []domain.Contact {
	out := make([]domain.Contact, 0, len(recipients))
	for _, r := range recipients {
		if r.HasEmail() {
			out = append(out, r)
		}
	}
	return out
}

func enter(logger *zap.Logger, state OrchestrationState) {
	logger.Debug("orchestration state", zap.String("state", string(state)))
}

func outcomeLabelForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, domain.ErrUnknownScope):
		return "unknown_scope"
	case errors.Is(err, domain.ErrContentUnavailable):
		return "content_unavailable"
	default:
		return "error"
	}
}
