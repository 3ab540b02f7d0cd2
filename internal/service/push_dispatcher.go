package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/provider"
	"github.com/kursadbilgin/community-notify/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPushConcurrency = 4
	defaultCallTimeout     = 10 * time.Second
)

// ChannelSender delivers rendered text to recipients over one channel.
// Delivery problems are reported in the outcome, never as an error.
type ChannelSender interface {
	Send(ctx context.Context, content domain.RenderedContent, recipients []domain.Contact, decoration domain.Decoration) domain.ChannelOutcome
}

// pushTarget is one device token and every recipient that registered it.
type pushTarget struct {
	userIDs []string
	token   string
}

func (t pushTarget) deliveries(receiptID string) []domain.Delivery {
	out := make([]domain.Delivery, 0, len(t.userIDs))
	for _, userID := range t.userIDs {
		out = append(out, domain.Delivery{UserID: userID, Endpoint: t.token, ReceiptID: receiptID})
	}
	return out
}

func (t pushTarget) failures(reason domain.Reason, message string) []domain.RecipientFailure {
	out := make([]domain.RecipientFailure, 0, len(t.userIDs))
	for _, userID := range t.userIDs {
		out = append(out, domain.RecipientFailure{UserID: userID, Endpoint: t.token, Reason: reason, Message: message})
	}
	return out
}

type pushChunkResult struct {
	deliveries []domain.Delivery
	failures   []domain.RecipientFailure
}

type PushDispatcher struct {
	gateway     provider.PushGateway
	limiter     ratelimit.RateLimiter
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
}

var _ ChannelSender = (*PushDispatcher)(nil)

func NewPushDispatcher(
	gateway provider.PushGateway,
	limiter ratelimit.RateLimiter,
	concurrency int,
	timeout time.Duration,
	logger *zap.Logger,
) (*PushDispatcher, error) {
	if gateway == nil {
		return nil, fmt.Errorf("push gateway is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if concurrency <= 0 {
		concurrency = defaultPushConcurrency
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushDispatcher{
		gateway:     gateway,
		limiter:     limiter,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

func (d *PushDispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Send validates tokens, splits the rest into gateway-sized chunks and sends
// them with bounded concurrency. A failed chunk only fails its own recipients.
func (d *PushDispatcher) Send(
	ctx context.Context,
	content domain.RenderedContent,
	recipients []domain.Contact,
	decoration domain.Decoration,
) domain.ChannelOutcome {
	outcome := domain.NewChannelOutcome(domain.ChannelPush)
	outcome.Attempted = true

	targets := make([]pushTarget, 0, len(recipients))
	seenTokens := make(map[string]int)
	for _, recipient := range recipients {
		if !recipient.HasPush() {
			outcome.RecordFailure(domain.RecipientFailure{
				UserID:  recipient.UserID,
				Reason:  domain.ReasonNoPushToken,
				Message: "recipient has no push token",
			})
			continue
		}
		for _, token := range recipient.PushTokens {
			token = strings.TrimSpace(token)
			if !provider.IsValidPushToken(token) {
				outcome.RecordFailure(domain.RecipientFailure{
					UserID:   recipient.UserID,
					Endpoint: token,
					Reason:   domain.ReasonInvalidTokenFormat,
					Message:  "token does not match the push token format",
				})
				continue
			}
			// One device shared by several accounts gets one message, and
			// the result is recorded for each of them.
			if idx, ok := seenTokens[token]; ok {
				if !slices.Contains(targets[idx].userIDs, recipient.UserID) {
					targets[idx].userIDs = append(targets[idx].userIDs, recipient.UserID)
				}
				continue
			}
			seenTokens[token] = len(targets)
			targets = append(targets, pushTarget{userIDs: []string{recipient.UserID}, token: token})
		}
	}

	outcome.AttemptedCount = len(targets)
	if len(targets) == 0 {
		return outcome
	}

	template := d.buildMessage(content, decoration)
	chunks := chunkPushTargets(targets, d.gateway.MaxBatchSize())
	results := make([]pushChunkResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = d.sendChunk(ctx, template, chunk)
			return nil
		})
	}
	_ = g.Wait()

	// Chunks are merged in submission order.
	for _, result := range results {
		for _, delivery := range result.deliveries {
			outcome.RecordSuccess(delivery)
		}
		for _, failure := range result.failures {
			outcome.RecordFailure(failure)
		}
	}

	return outcome
}

func (d *PushDispatcher) sendChunk(ctx context.Context, template provider.PushMessage, chunk []pushTarget) pushChunkResult {
	if err := waitWithTimeout(ctx, d.limiter, domain.ChannelPush, len(chunk), d.timeout); err != nil {
		return failPushChunk(chunk, reasonForError(err), fmt.Sprintf("rate limiter: %v", err))
	}

	messages := make([]provider.PushMessage, len(chunk))
	for i, target := range chunk {
		msg := template
		msg.To = target.token
		messages[i] = msg
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	tickets, err := d.gateway.Send(callCtx, messages)
	d.metrics.ObserveProviderCall(domain.ChannelPush.Key(), time.Since(start))
	if err != nil {
		d.logger.Warn("push chunk failed",
			zap.Int("size", len(chunk)),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		return failPushChunk(chunk, reasonForError(err), err.Error())
	}

	var result pushChunkResult
	for i, target := range chunk {
		if i >= len(tickets) {
			result.failures = append(result.failures, target.failures(domain.ReasonUnknownError, "no acknowledgement for message")...)
			continue
		}

		ticket := tickets[i]
		if ticket.OK() {
			result.deliveries = append(result.deliveries, target.deliveries(ticket.ID)...)
			continue
		}

		reason := domain.ReasonUnknownError
		if r := strings.TrimSpace(ticket.Reason); r != "" {
			reason = domain.Reason(r)
		}
		result.failures = append(result.failures, target.failures(reason, ticket.Message)...)
	}
	return result
}

func (d *PushDispatcher) buildMessage(content domain.RenderedContent, decoration domain.Decoration) provider.PushMessage {
	data := make(map[string]string, len(decoration.Data)+2)
	for k, v := range decoration.Data {
		data[k] = v
	}
	if link := strings.TrimSpace(decoration.DeepLink); link != "" {
		data["url"] = link
	}
	if len(decoration.Buttons) > 0 {
		if raw, err := json.Marshal(decoration.Buttons); err == nil {
			data["buttons"] = string(raw)
		}
	}
	if len(data) == 0 {
		data = nil
	}

	priority := decoration.PushPriority
	if priority == "" {
		priority = domain.PushPriorityDefault
	}

	return provider.PushMessage{
		Title:    content.Subject,
		Body:     content.PrimaryBody,
		Subtitle: content.SecondaryBody,
		Data:     data,
		Priority: string(priority),
		Sound:    decoration.Sound,
		Badge:    decoration.Badge,
	}
}

func failPushChunk(chunk []pushTarget, reason domain.Reason, message string) pushChunkResult {
	result := pushChunkResult{failures: make([]domain.RecipientFailure, 0, len(chunk))}
	for _, target := range chunk {
		result.failures = append(result.failures, target.failures(reason, message)...)
	}
	return result
}

func chunkPushTargets(targets []pushTarget, size int) [][]pushTarget {
	if size <= 0 {
		size = len(targets)
	}
	chunks := make([][]pushTarget, 0, (len(targets)+size-1)/size)
	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		chunks = append(chunks, targets[start:end])
	}
	return chunks
}

// waitWithTimeout bounds the limiter wait by the per-call timeout so a
// saturated window fails the chunk as a timeout instead of stalling it.
func waitWithTimeout(ctx context.Context, limiter ratelimit.RateLimiter, channel domain.Channel, n int, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return limiter.Wait(waitCtx, channel, n)
}

// reasonForError maps a failed call to the reason recorded for every
// recipient it carried.
func reasonForError(err error) domain.Reason {
	if provider.IsTimeout(err) {
		return domain.ReasonTimeout
	}
	return domain.ReasonChannelSendError
}
