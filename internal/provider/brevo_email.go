package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBrevoEmailURL  = "https://api.brevo.com/v3/smtp/email"
	defaultEmailBatchSize = 50
	maxBrevoVersions      = 1000
)

type brevoRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoMessageVersion struct {
	To     []brevoRecipient  `json:"to"`
	Params map[string]string `json:"params,omitempty"`
}

type brevoSendRequest struct {
	Sender          *EmailAddress         `json:"sender,omitempty"`
	TemplateID      int64                 `json:"templateId"`
	Params          map[string]any        `json:"params,omitempty"`
	ReplyTo         *EmailAddress         `json:"replyTo,omitempty"`
	Headers         map[string]string     `json:"headers,omitempty"`
	MessageVersions []brevoMessageVersion `json:"messageVersions"`
}

type brevoSendResponse struct {
	MessageID  string   `json:"messageId"`
	MessageIDs []string `json:"messageIds"`
}

// BrevoEmailGateway sends one templated request per batch, with a message
// version per recipient so the gateway answers with per-recipient ids.
type BrevoEmailGateway struct {
	client    *resty.Client
	endpoint  string
	apiKey    string
	batchSize int
}

type BrevoEmailOptions struct {
	Endpoint  string
	APIKey    string
	BatchSize int
	Timeout   time.Duration
}

func NewBrevoEmailGateway(opts BrevoEmailOptions) (*BrevoEmailGateway, error) {
	client := resty.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	client.SetTimeout(timeout)

	return NewBrevoEmailGatewayWithClient(opts, client)
}

func NewBrevoEmailGatewayWithClient(opts BrevoEmailOptions, client *resty.Client) (*BrevoEmailGateway, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultBrevoEmailURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid email gateway endpoint: %w", err)
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("email gateway api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultProviderTimeout)
	}
	client.SetRetryCount(0)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmailBatchSize
	}
	if batchSize > maxBrevoVersions {
		batchSize = maxBrevoVersions
	}

	return &BrevoEmailGateway{
		client:    client,
		endpoint:  endpoint,
		apiKey:    apiKey,
		batchSize: batchSize,
	}, nil
}

func (g *BrevoEmailGateway) MaxRecipients() int {
	return g.batchSize
}

func (g *BrevoEmailGateway) SendTemplate(ctx context.Context, req EmailSendRequest) (*EmailSendResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("email gateway is not initialized")
	}
	if len(req.Recipients) == 0 {
		return &EmailSendResponse{}, nil
	}
	if req.TemplateID <= 0 {
		return nil, &ProviderError{Message: "template id is required"}
	}

	body := brevoSendRequest{
		TemplateID:      req.TemplateID,
		Params:          req.Params,
		Headers:         req.Headers,
		MessageVersions: make([]brevoMessageVersion, 0, len(req.Recipients)),
	}
	if strings.TrimSpace(req.Sender.Email) != "" {
		sender := req.Sender
		body.Sender = &sender
	}
	if replyTo := strings.TrimSpace(req.ReplyTo); replyTo != "" {
		body.ReplyTo = &EmailAddress{Email: replyTo}
	}
	for _, recipient := range req.Recipients {
		body.MessageVersions = append(body.MessageVersions, brevoMessageVersion{
			To:     []brevoRecipient{{Email: recipient.Email, Name: recipient.Name}},
			Params: recipient.Params,
		})
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("api-key", g.apiKey).
		SetBody(body).
		Post(g.endpoint)
	if err != nil {
		return nil, requestError(err)
	}

	raw := strings.TrimSpace(response.String())
	if !isSuccessStatus(response.StatusCode()) {
		return nil, statusError(response.StatusCode(), raw)
	}

	var decoded brevoSendResponse
	if raw != "" {
		if err := json.Unmarshal(response.Body(), &decoded); err != nil {
			return nil, &ProviderError{
				StatusCode: response.StatusCode(),
				Message:    "malformed email gateway response",
				Cause:      err,
			}
		}
	}

	ids := decoded.MessageIDs
	if len(ids) == 0 && decoded.MessageID != "" {
		ids = []string{decoded.MessageID}
	}

	out := &EmailSendResponse{MessageIDs: ids}
	// Positional ids are only meaningful when the gateway returned one per version.
	if len(ids) == len(req.Recipients) {
		out.Results = make([]EmailRecipientResult, len(req.Recipients))
		for i, recipient := range req.Recipients {
			out.Results[i] = EmailRecipientResult{
				Email:     recipient.Email,
				Accepted:  true,
				MessageID: ids[i],
			}
		}
	}
	return out, nil
}
