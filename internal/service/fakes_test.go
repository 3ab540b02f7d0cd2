package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/provider"
	"github.com/kursadbilgin/community-notify/internal/queue"
)

type fakeTemplateRepo struct {
	templates  map[string]*domain.Template
	getByKeyFn func(ctx context.Context, key string) (*domain.Template, error)
	ensureFn   func(ctx context.Context, t *domain.Template) (*domain.Template, bool, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeTemplateRepo) GetByKey(ctx context.Context, key string) (*domain.Template, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.getByKeyFn != nil {
		return f.getByKeyFn(ctx, key)
	}
	if tpl, ok := f.templates[key]; ok {
		return tpl, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) EnsureTemplate(ctx context.Context, t *domain.Template) (*domain.Template, bool, error) {
	if f.ensureFn != nil {
		return f.ensureFn(ctx, t)
	}
	return t, true, nil
}

// fakeDirectoryRepo serves contacts, groups and gatherings from maps. The Fn
// fields override the map lookups.
type fakeDirectoryRepo struct {
	contacts   map[string]domain.Contact
	groups     map[string][]string
	rsvps      map[string]map[domain.RSVPStatus][]string
	gatherings map[string]*domain.Gathering
	candidates map[string]*domain.Candidate

	contactsFn  func(ctx context.Context, userIDs []string) ([]domain.Contact, error)
	gatheringFn func(ctx context.Context, id string) (*domain.Gathering, error)

	mu            sync.Mutex
	contactCalls  int
	expandCalls   int
	lastContactID []string
}

func (f *fakeDirectoryRepo) ContactsByUserIDs(ctx context.Context, userIDs []string) ([]domain.Contact, error) {
	f.mu.Lock()
	f.contactCalls++
	f.lastContactID = append([]string(nil), userIDs...)
	f.mu.Unlock()

	if f.contactsFn != nil {
		return f.contactsFn(ctx, userIDs)
	}
	contacts := make([]domain.Contact, 0, len(userIDs))
	for _, id := range userIDs {
		if c, ok := f.contacts[id]; ok {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (f *fakeDirectoryRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	f.mu.Lock()
	f.expandCalls++
	f.mu.Unlock()

	ids, ok := f.groups[groupID]
	if !ok {
		return nil, domain.ErrUnknownScope
	}
	return ids, nil
}

func (f *fakeDirectoryRepo) RSVPUserIDs(ctx context.Context, gatheringID string, status domain.RSVPStatus) ([]string, error) {
	f.mu.Lock()
	f.expandCalls++
	f.mu.Unlock()

	byStatus, ok := f.rsvps[gatheringID]
	if !ok {
		return nil, domain.ErrUnknownScope
	}
	return byStatus[status], nil
}

func (f *fakeDirectoryRepo) GatheringByID(ctx context.Context, id string) (*domain.Gathering, error) {
	if f.gatheringFn != nil {
		return f.gatheringFn(ctx, id)
	}
	if g, ok := f.gatherings[id]; ok {
		return g, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectoryRepo) CandidateByID(ctx context.Context, id string) (*domain.Candidate, error) {
	if c, ok := f.candidates[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectoryRepo) contactLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactCalls + f.expandCalls
}

// fakePushGateway accepts every message unless sendFn says otherwise.
type fakePushGateway struct {
	batchSize int
	sendFn    func(ctx context.Context, messages []provider.PushMessage) ([]provider.PushTicket, error)

	mu    sync.Mutex
	calls [][]provider.PushMessage
}

func (f *fakePushGateway) Send(ctx context.Context, messages []provider.PushMessage) ([]provider.PushTicket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, messages)
	}
	tickets := make([]provider.PushTicket, len(messages))
	for i, msg := range messages {
		tickets[i] = provider.PushTicket{Status: provider.TicketStatusOK, ID: "ticket-" + msg.To}
	}
	return tickets, nil
}

func (f *fakePushGateway) MaxBatchSize() int {
	if f.batchSize <= 0 {
		return 100
	}
	return f.batchSize
}

func (f *fakePushGateway) sentCalls() [][]provider.PushMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]provider.PushMessage(nil), f.calls...)
}

type fakeEmailGateway struct {
	maxRecipients int
	sendFn        func(ctx context.Context, req provider.EmailSendRequest) (*provider.EmailSendResponse, error)

	mu       sync.Mutex
	requests []provider.EmailSendRequest
}

func (f *fakeEmailGateway) SendTemplate(ctx context.Context, req provider.EmailSendRequest) (*provider.EmailSendResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return &provider.EmailSendResponse{MessageIDs: []string{"msg-1"}}, nil
}

func (f *fakeEmailGateway) MaxRecipients() int {
	if f.maxRecipients <= 0 {
		return 50
	}
	return f.maxRecipients
}

func (f *fakeEmailGateway) sentRequests() []provider.EmailSendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.EmailSendRequest(nil), f.requests...)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel domain.Channel, n int) (bool, error)
	waitFn  func(ctx context.Context, channel domain.Channel, n int) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel domain.Channel, n int) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel, n)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel domain.Channel, n int) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel, n)
	}
	return nil
}

// fakeSender records the recipients of every Send call.
type fakeSender struct {
	channel domain.Channel
	sendFn  func(ctx context.Context, content domain.RenderedContent, recipients []domain.Contact, decoration domain.Decoration) domain.ChannelOutcome

	mu       sync.Mutex
	calls    [][]domain.Contact
	contents []domain.RenderedContent
}

func (f *fakeSender) Send(ctx context.Context, content domain.RenderedContent, recipients []domain.Contact, decoration domain.Decoration) domain.ChannelOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, recipients)
	f.contents = append(f.contents, content)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, content, recipients, decoration)
	}
	outcome := domain.NewChannelOutcome(f.channel)
	outcome.Attempted = true
	outcome.AttemptedCount = len(recipients)
	for _, r := range recipients {
		outcome.RecordSuccess(domain.Delivery{UserID: r.UserID, Endpoint: r.UserID})
	}
	return outcome
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWorkflowRepo struct {
	createFn           func(ctx context.Context, w *domain.Workflow) (string, error)
	updateFn           func(ctx context.Context, id string, update domain.WorkflowUpdate) error
	transitionStatusFn func(ctx context.Context, id string, from, to domain.WorkflowStatus) (bool, error)
	getByIDFn          func(ctx context.Context, id string) (*domain.Workflow, error)
	listByStatusFn     func(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error)
	listByEntityFn     func(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.Workflow, error)
	listDueFn          func(ctx context.Context, now time.Time, limit int) ([]domain.Workflow, error)
	failStaleFn        func(ctx context.Context, startedBefore time.Time, reason string) (int64, error)
	deleteFn           func(ctx context.Context, id string) error
}

func (f *fakeWorkflowRepo) Create(ctx context.Context, w *domain.Workflow) (string, error) {
	if f.createFn != nil {
		return f.createFn(ctx, w)
	}
	if w.ID == "" {
		w.ID = "wf-1"
	}
	return w.ID, nil
}

func (f *fakeWorkflowRepo) Update(ctx context.Context, id string, update domain.WorkflowUpdate) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, update)
	}
	return nil
}

func (f *fakeWorkflowRepo) TransitionStatus(ctx context.Context, id string, from, to domain.WorkflowStatus) (bool, error) {
	if f.transitionStatusFn != nil {
		return f.transitionStatusFn(ctx, id, from, to)
	}
	return true, nil
}

func (f *fakeWorkflowRepo) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWorkflowRepo) ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

func (f *fakeWorkflowRepo) ListByAssociatedEntity(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.Workflow, error) {
	if f.listByEntityFn != nil {
		return f.listByEntityFn(ctx, ref, limit)
	}
	return nil, nil
}

func (f *fakeWorkflowRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Workflow, error) {
	if f.listDueFn != nil {
		return f.listDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeWorkflowRepo) FailStaleExecutions(ctx context.Context, startedBefore time.Time, reason string) (int64, error) {
	if f.failStaleFn != nil {
		return f.failStaleFn(ctx, startedBefore, reason)
	}
	return 0, nil
}

func (f *fakeWorkflowRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeReceiptRepo struct {
	createBatchFn func(ctx context.Context, receipts []domain.DeliveryReceipt) error

	mu       sync.Mutex
	receipts []domain.DeliveryReceipt
}

func (f *fakeReceiptRepo) CreateBatch(ctx context.Context, receipts []domain.DeliveryReceipt) error {
	f.mu.Lock()
	f.receipts = append(f.receipts, receipts...)
	f.mu.Unlock()

	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, receipts)
	}
	return nil
}

func (f *fakeReceiptRepo) ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.DeliveryReceipt
	for _, r := range f.receipts {
		if r.WorkflowID != nil && *r.WorkflowID == workflowID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	checkFn       func(ctx context.Context, req domain.Request) error
	orchestrateFn func(ctx context.Context, req domain.Request) (domain.Result, error)
}

func (f *fakeNotifier) Check(ctx context.Context, req domain.Request) error {
	if f.checkFn != nil {
		return f.checkFn(ctx, req)
	}
	return nil
}

func (f *fakeNotifier) Orchestrate(ctx context.Context, req domain.Request) (domain.Result, error) {
	if f.orchestrateFn != nil {
		return f.orchestrateFn(ctx, req)
	}
	result := domain.NewEmptyResult("")
	result.Push.Attempted = true
	result.Push.RecordSuccess(domain.Delivery{UserID: "u1", Endpoint: "ExponentPushToken[a]", ReceiptID: "ticket-a"})
	result.Summarize()
	return result, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.WorkflowMessage) error

	mu       sync.Mutex
	messages []queue.WorkflowMessage
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.WorkflowMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeExecutor struct {
	executeFn func(ctx context.Context, id string) (*domain.Workflow, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, id string) (*domain.Workflow, error) {
	if f.executeFn != nil {
		return f.executeFn(ctx, id)
	}
	return &domain.Workflow{ID: id, Status: domain.WorkflowCompleted}, nil
}

// fakeLease grants each key once until it is released.
type fakeLease struct {
	acquireErr error

	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (f *fakeLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLease) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}
