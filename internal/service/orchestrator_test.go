package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/provider"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	templates    *fakeTemplateRepo
	directory    *fakeDirectoryRepo
}

func newOrchestratorFixture(t *testing.T, push, email ChannelSender) *orchestratorFixture {
	t.Helper()

	templates := &fakeTemplateRepo{templates: map[string]*domain.Template{
		"welcome": {Key: "welcome", Title: "Welcome {{name}}", Body: "Glad to have you", Defaults: map[string]string{"name": "friend"}},
	}}
	directory := newTestDirectory()

	content, err := NewContentResolver(templates, directory, time.Second, nil)
	if err != nil {
		t.Fatalf("NewContentResolver() error = %v", err)
	}
	recipients, err := NewRecipientResolver(directory, time.Second, nil)
	if err != nil {
		t.Fatalf("NewRecipientResolver() error = %v", err)
	}
	orchestrator, err := NewOrchestrator(content, recipients, push, email, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	orchestrator.SetMetrics(observability.NewMetrics())

	return &orchestratorFixture{orchestrator: orchestrator, templates: templates, directory: directory}
}

func literalRequest(mode domain.Mode, userIDs ...string) domain.Request {
	return domain.Request{
		Mode:       mode,
		Recipients: domain.ExplicitRecipients{UserIDs: userIDs},
		Content:    domain.LiteralContent{Title: "Hi", Body: "Meeting moved"},
	}
}

func failingPushSender() *fakeSender {
	return &fakeSender{
		channel: domain.ChannelPush,
		sendFn: func(ctx context.Context, content domain.RenderedContent, recipients []domain.Contact, decoration domain.Decoration) domain.ChannelOutcome {
			outcome := domain.NewChannelOutcome(domain.ChannelPush)
			outcome.Attempted = true
			for _, r := range recipients {
				outcome.RecordFailure(domain.RecipientFailure{UserID: r.UserID, Reason: domain.ReasonChannelSendError})
			}
			return outcome
		},
	}
}

func TestOrchestratorRejectsInvalidRequestBeforeDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  domain.Request
	}{
		{
			name: "no content",
			req:  domain.Request{Mode: domain.ModeBoth, Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1"}}},
		},
		{
			name: "unknown mode",
			req: domain.Request{
				Mode:       "SMS_ONLY",
				Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1"}},
				Content:    domain.LiteralContent{Title: "Hi"},
			},
		},
		{
			name: "empty recipients",
			req: domain.Request{
				Mode:       domain.ModeBoth,
				Recipients: domain.ExplicitRecipients{},
				Content:    domain.LiteralContent{Title: "Hi"},
			},
		},
		{
			name: "too many buttons",
			req: domain.Request{
				Mode:       domain.ModeBoth,
				Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1"}},
				Content:    domain.LiteralContent{Title: "Hi"},
				Decoration: domain.Decoration{Buttons: []domain.Button{
					{Label: "a", URL: "https://a"}, {Label: "b", URL: "https://b"},
					{Label: "c", URL: "https://c"}, {Label: "d", URL: "https://d"},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			push := &fakeSender{channel: domain.ChannelPush}
			email := &fakeSender{channel: domain.ChannelEmail}
			fx := newOrchestratorFixture(t, push, email)

			_, err := fx.orchestrator.Orchestrate(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("Orchestrate() error = %v, want ErrInvalidRequest", err)
			}
			if push.callCount() != 0 || email.callCount() != 0 {
				t.Fatal("no channel should be dispatched for an invalid request")
			}
			if fx.directory.contactLookups() != 0 {
				t.Fatal("recipients should not be resolved for an invalid request")
			}
		})
	}
}

func TestOrchestratorMissingTemplateSkipsResolution(t *testing.T) {
	t.Parallel()

	push := &fakeSender{channel: domain.ChannelPush}
	email := &fakeSender{channel: domain.ChannelEmail}
	fx := newOrchestratorFixture(t, push, email)

	_, err := fx.orchestrator.Orchestrate(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.GroupRecipients{GroupID: "grp-1"},
		Content:    domain.TemplateContent{Key: "missing_template"},
	})
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("Orchestrate() error = %v, want ErrTemplateNotFound", err)
	}
	if fx.directory.contactLookups() != 0 {
		t.Fatalf("directory lookups = %d, want 0", fx.directory.contactLookups())
	}
	if push.callCount() != 0 || email.callCount() != 0 {
		t.Fatal("nothing should be dispatched")
	}
}

func TestOrchestratorUnknownScope(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, &fakeSender{channel: domain.ChannelPush}, &fakeSender{channel: domain.ChannelEmail})

	_, err := fx.orchestrator.Orchestrate(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.RSVPRecipients{GatheringID: "g-404", Status: domain.RSVPGoing},
		Content:    domain.LiteralContent{Title: "Hi"},
	})
	if !errors.Is(err, domain.ErrUnknownScope) {
		t.Fatalf("Orchestrate() error = %v, want ErrUnknownScope", err)
	}
}

func TestOrchestratorNoRecipients(t *testing.T) {
	t.Parallel()

	push := &fakeSender{channel: domain.ChannelPush}
	email := &fakeSender{channel: domain.ChannelEmail}
	fx := newOrchestratorFixture(t, push, email)

	result, err := fx.orchestrator.Orchestrate(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.GroupRecipients{GroupID: "grp-empty"},
		Content:    domain.LiteralContent{Title: "Hi"},
	})
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if result.Success || result.Message != "no recipients" {
		t.Fatalf("result = %+v, want unsuccessful with no recipients message", result)
	}
	if result.Push.Attempted || result.Email.Attempted {
		t.Fatal("no channel should be attempted")
	}
	if push.callCount() != 0 || email.callCount() != 0 {
		t.Fatal("no channel should be dispatched")
	}
}

func TestOrchestratorOnlyUnknownUsers(t *testing.T) {
	t.Parallel()

	push := &fakeSender{channel: domain.ChannelPush}
	fx := newOrchestratorFixture(t, push, &fakeSender{channel: domain.ChannelEmail})

	result, err := fx.orchestrator.Orchestrate(context.Background(), literalRequest(domain.ModeBoth, "ghost"))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if result.Success || len(result.Unresolved) != 1 || result.Unresolved[0].UserID != "ghost" {
		t.Fatalf("result = %+v", result)
	}
	if push.callCount() != 0 {
		t.Fatal("push should not be dispatched")
	}
}

func TestOrchestratorPushPreferredSkipsEmailWhenPushSucceeds(t *testing.T) {
	t.Parallel()

	push := &fakeSender{channel: domain.ChannelPush}
	email := &fakeSender{channel: domain.ChannelEmail}
	fx := newOrchestratorFixture(t, push, email)

	result, err := fx.orchestrator.Orchestrate(context.Background(), literalRequest(domain.ModePushPreferred, "u1", "u2"))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if !result.Success || result.Push.Succeeded != 2 {
		t.Fatalf("result = %+v", result)
	}
	if email.callCount() != 0 || result.Email.Attempted {
		t.Fatal("email should not be attempted when push delivered")
	}
}

func TestOrchestratorPushPreferredFallsBackToEmailRecipients(t *testing.T) {
	t.Parallel()

	push := failingPushSender()
	email := &fakeSender{channel: domain.ChannelEmail}
	fx := newOrchestratorFixture(t, push, email)

	result, err := fx.orchestrator.Orchestrate(context.Background(), literalRequest(domain.ModePushPreferred, "u1", "u2", "u3"))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}

	if email.callCount() != 1 {
		t.Fatalf("email calls = %d, want 1", email.callCount())
	}
	if got := contactIDs(email.calls[0]); !equalStrings(got, []string{"u1", "u3"}) {
		t.Fatalf("fallback recipients = %v, want [u1 u3]", got)
	}
	if !result.Success || result.Push.Succeeded != 0 || result.Email.Succeeded != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestOrchestratorPushPreferredWithoutEmailAddresses(t *testing.T) {
	t.Parallel()

	email := &fakeSender{channel: domain.ChannelEmail}
	fx := newOrchestratorFixture(t, failingPushSender(), email)

	result, err := fx.orchestrator.Orchestrate(context.Background(), literalRequest(domain.ModePushPreferred, "u2"))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if email.callCount() != 0 {
		t.Fatal("email should not be called without addresses")
	}
	if result.Success {
		t.Fatalf("result = %+v, want unsuccessful", result)
	}
}

func TestOrchestratorBothDispatchesEveryChannel(t *testing.T) {
	t.Parallel()

	pushGateway := &fakePushGateway{}
	emailGateway := &fakeEmailGateway{}
	push, err := NewPushDispatcher(pushGateway, &fakeRateLimiter{}, 2, time.Second, nil)
	if err != nil {
		t.Fatalf("NewPushDispatcher() error = %v", err)
	}
	email, err := NewEmailDispatcher(emailGateway, &fakeRateLimiter{}, EmailDispatcherOptions{SenderEmail: "noreply@example.com"}, nil)
	if err != nil {
		t.Fatalf("NewEmailDispatcher() error = %v", err)
	}
	fx := newOrchestratorFixture(t, push, email)

	result, err := fx.orchestrator.Orchestrate(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1", "u2"}},
		Content:    domain.TemplateContent{Key: "welcome", Variables: map[string]string{"name": "team"}},
	})
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Push.AttemptedCount != 3 || result.Push.Succeeded != 3 || result.Push.Failed != 0 {
		t.Fatalf("push = %+v, want 3 delivered tokens", result.Push)
	}
	if result.Email.Succeeded != 1 || result.Email.Failed != 1 || result.Email.Failures[0].Reason != domain.ReasonNoEmailAddress {
		t.Fatalf("email = %+v, want u1 delivered and u2 without address", result.Email)
	}
	if result.Message != "push: 3 of 3 delivered; email: 1 of 2 delivered" {
		t.Fatalf("message = %q", result.Message)
	}

	calls := pushGateway.sentCalls()
	if len(calls) != 1 || calls[0][0].Title != "Welcome team" {
		t.Fatalf("push calls = %+v", calls)
	}
	requests := emailGateway.sentRequests()
	if len(requests) != 1 || requests[0].Params["subject"] != "Welcome team" {
		t.Fatalf("email requests = %+v", requests)
	}
}

func TestOrchestratorBothWithEmailOnlyRecipient(t *testing.T) {
	t.Parallel()

	push, err := NewPushDispatcher(&fakePushGateway{}, nil, 1, time.Second, nil)
	if err != nil {
		t.Fatalf("NewPushDispatcher() error = %v", err)
	}
	email, err := NewEmailDispatcher(&fakeEmailGateway{}, nil, EmailDispatcherOptions{}, nil)
	if err != nil {
		t.Fatalf("NewEmailDispatcher() error = %v", err)
	}
	fx := newOrchestratorFixture(t, push, email)
	fx.directory.contacts = map[string]domain.Contact{
		"u1": {UserID: "u1", Email: "u1@example.com", PushTokens: []string{"ExponentPushToken[u1]"}},
		"u2": {UserID: "u2", Email: "u2@example.com"},
	}

	result, err := fx.orchestrator.Orchestrate(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1", "u2"}},
		Content:    domain.LiteralContent{Title: "T", Body: "C"},
	})
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}

	if !result.Push.Attempted || result.Push.Succeeded != 1 || result.Push.Failed != 1 {
		t.Fatalf("push = %+v, want 1 succeeded and 1 failed", result.Push)
	}
	if f := result.Push.Failures[0]; f.UserID != "u2" || f.Reason != domain.ReasonNoPushToken {
		t.Fatalf("push failure = %+v, want u2 NoPushToken", f)
	}
	if !result.Email.Attempted || result.Email.Succeeded != 2 || result.Email.Failed != 0 {
		t.Fatalf("email = %+v, want 2 succeeded", result.Email)
	}
	if !result.Success {
		t.Fatal("result should be successful")
	}
}

func TestOrchestratorCheckDoesNotDispatch(t *testing.T) {
	t.Parallel()

	pushGateway := &fakePushGateway{}
	push, err := NewPushDispatcher(pushGateway, nil, 1, time.Second, nil)
	if err != nil {
		t.Fatalf("NewPushDispatcher() error = %v", err)
	}
	fx := newOrchestratorFixture(t, push, &fakeSender{channel: domain.ChannelEmail})

	if err := fx.orchestrator.Check(context.Background(), literalRequest(domain.ModeBoth, "u1")); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(pushGateway.sentCalls()) != 0 || fx.directory.contactLookups() != 0 {
		t.Fatal("Check should only validate")
	}

	err = fx.orchestrator.Check(context.Background(), domain.Request{
		Mode:       domain.ModeBoth,
		Recipients: domain.ExplicitRecipients{UserIDs: []string{"u1"}},
		Content:    domain.TemplateContent{Key: "nope"},
	})
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("Check() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	if _, err := NewOrchestrator(nil, &RecipientResolver{}, sender, sender, nil); err == nil {
		t.Fatal("expected error without content resolver")
	}
	if _, err := NewOrchestrator(&ContentResolver{}, nil, sender, sender, nil); err == nil {
		t.Fatal("expected error without recipient resolver")
	}
	if _, err := NewOrchestrator(&ContentResolver{}, &RecipientResolver{}, nil, sender, nil); err == nil {
		t.Fatal("expected error without push sender")
	}
}

var _ provider.PushGateway = (*fakePushGateway)(nil)
var _ provider.EmailGateway = (*fakeEmailGateway)(nil)
