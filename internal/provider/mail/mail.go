package mail

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
	"pulsefeed/internal/provider"
)

const (
	// detailBatchSize bounds concurrent per-message detail fetches to
	// respect Gmail API quotas.
	detailBatchSize = 5
	maxListResults  = 50
)

// Adapter fetches mail from the Gmail API.
type Adapter struct {
	logger   *logger.Logger
	endpoint string // optional override, used by tests
}

type Option func(*Adapter)

// WithEndpoint points the adapter at an alternate API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) {
		a.endpoint = endpoint
	}
}

func New(log *logger.Logger, opts ...Option) *Adapter {
	a := &Adapter{logger: log.With("provider", "gmail")}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return "gmail"
}

func (a *Adapter) Source() model.Source {
	return model.SourceMail
}

type oauth2Transport struct {
	token string
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

func (a *Adapter) Fetch(ctx context.Context, credential string, windowDays int) ([]provider.RawMessage, error) {
	httpClient := &http.Client{
		Transport: &oauth2Transport{token: credential},
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(a.endpoint))
	}
	svc, err := gmail.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, provider.NewError(a.Name(), provider.Unavailable, fmt.Errorf("failed to create Gmail service: %w", err))
	}

	query := fmt.Sprintf("newer_than:%dd", windowDays)
	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(maxListResults).Context(ctx).Do()
	if err != nil {
		return nil, a.classify(err)
	}

	// Fetch message details in bounded batches. A single failed detail
	// fetch drops that message, it does not fail the whole call.
	raws := make([]provider.RawMessage, len(list.Messages))
	ok := make([]bool, len(list.Messages))
	var mu sync.Mutex
	var fatal error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailBatchSize)
	for i, msg := range list.Messages {
		i, msg := i, msg
		g.Go(func() error {
			message, err := svc.Users.Messages.Get("me", msg.Id).Format("full").Context(gctx).Do()
			if err != nil {
				perr := a.classify(err)
				if provider.AsCredentialError(perr) != nil {
					mu.Lock()
					fatal = perr
					mu.Unlock()
					return perr
				}
				a.logger.Warn("Dropping message after failed detail fetch:", msg.Id, err)
				return nil
			}
			raws[i] = a.toRaw(message)
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if fatal != nil {
			return nil, fatal
		}
		return nil, err
	}

	result := make([]provider.RawMessage, 0, len(raws))
	for i, raw := range raws {
		if ok[i] {
			result = append(result, raw)
		}
	}

	a.logger.Info("Fetched", len(result), "messages from Gmail")
	return result, nil
}

// toRaw converts a full Gmail message into the provider-native record.
func (a *Adapter) toRaw(message *gmail.Message) provider.RawMessage {
	raw := provider.RawMessage{
		ProviderID: message.Id,
		Snippet:    message.Snippet,
		Timestamp:  time.Unix(message.InternalDate/1000, 0).UTC(),
		Labels:     message.LabelIds,
		Metadata: map[string]any{
			"thread_id": message.ThreadId,
		},
	}

	if message.Payload == nil {
		return raw
	}
	for _, header := range message.Payload.Headers {
		switch header.Name {
		case "Subject":
			raw.Subject = header.Value
		case "From":
			raw.Sender, raw.SenderEmail = splitAddress(header.Value)
		case "To":
			raw.Recipients = header.Value
		}
	}
	raw.HasAttachments = hasAttachments(message.Payload)
	return raw
}

// splitAddress separates `Display Name <addr@host>` into its parts.
// A bare address is returned as both name and email.
func splitAddress(from string) (name, email string) {
	open := -1
	for i, r := range from {
		if r == '<' {
			open = i
			break
		}
	}
	if open < 0 {
		return from, from
	}
	name = trimQuotes(from[:open])
	email = from[open+1:]
	if n := len(email); n > 0 && email[n-1] == '>' {
		email = email[:n-1]
	}
	if name == "" {
		name = email
	}
	return name, email
}

func trimQuotes(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '"') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '"') {
		s = s[:len(s)-1]
	}
	return s
}

func hasAttachments(payload *gmail.MessagePart) bool {
	if payload.Filename != "" {
		return true
	}
	for _, part := range payload.Parts {
		if hasAttachments(part) {
			return true
		}
	}
	return false
}

// classify maps a Gmail API error onto the provider error taxonomy.
func (a *Adapter) classify(err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		return provider.NewError(a.Name(), provider.KindFromStatus(gerr.Code), err)
	}
	// Anything that is not an API-level rejection is a network failure.
	return provider.NewError(a.Name(), provider.Unavailable, err)
}
