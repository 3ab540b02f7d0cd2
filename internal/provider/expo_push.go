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
	DefaultExpoPushURL       = "https://exp.host/--/api/v2/push/send"
	defaultPushBatchSize     = 100
	defaultProviderTimeout   = 10 * time.Second
	expoUnknownTicketMessage = "gateway returned no ticket for message"
)

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoSendResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoPushGateway posts message batches to an Expo-compatible push endpoint.
type ExpoPushGateway struct {
	client      *resty.Client
	endpoint    string
	accessToken string
	batchSize   int
}

type ExpoPushOptions struct {
	Endpoint    string
	AccessToken string
	BatchSize   int
	Timeout     time.Duration
}

func NewExpoPushGateway(opts ExpoPushOptions) (*ExpoPushGateway, error) {
	client := resty.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	client.SetTimeout(timeout)

	return NewExpoPushGatewayWithClient(opts, client)
}

func NewExpoPushGatewayWithClient(opts ExpoPushOptions, client *resty.Client) (*ExpoPushGateway, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultExpoPushURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultProviderTimeout)
	}
	client.SetRetryCount(0)

	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > defaultPushBatchSize {
		batchSize = defaultPushBatchSize
	}

	return &ExpoPushGateway{
		client:      client,
		endpoint:    endpoint,
		accessToken: strings.TrimSpace(opts.AccessToken),
		batchSize:   batchSize,
	}, nil
}

func (g *ExpoPushGateway) MaxBatchSize() int {
	return g.batchSize
}

func (g *ExpoPushGateway) Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("push gateway is not initialized")
	}
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > g.batchSize {
		return nil, &ProviderError{Message: fmt.Sprintf("batch of %d exceeds max %d", len(messages), g.batchSize)}
	}

	req := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(messages)
	if g.accessToken != "" {
		req.SetAuthToken(g.accessToken)
	}

	response, err := req.Post(g.endpoint)
	if err != nil {
		return nil, requestError(err)
	}

	body := strings.TrimSpace(response.String())
	if !isSuccessStatus(response.StatusCode()) {
		return nil, statusError(response.StatusCode(), body)
	}

	var decoded expoSendResponse
	if err := json.Unmarshal(response.Body(), &decoded); err != nil {
		return nil, &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    "malformed push gateway response",
			Cause:      err,
		}
	}
	if len(decoded.Data) == 0 && len(decoded.Errors) > 0 {
		return nil, &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("%s: %s", decoded.Errors[0].Code, decoded.Errors[0].Message),
		}
	}

	tickets := make([]PushTicket, len(messages))
	for i := range messages {
		if i >= len(decoded.Data) {
			tickets[i] = PushTicket{Status: TicketStatusError, Message: expoUnknownTicketMessage}
			continue
		}
		ticket := decoded.Data[i]
		tickets[i] = PushTicket{
			Status:  strings.ToLower(strings.TrimSpace(ticket.Status)),
			ID:      ticket.ID,
			Message: ticket.Message,
			Reason:  ticket.Details.Error,
		}
	}
	return tickets, nil
}
