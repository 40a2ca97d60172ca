package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
	"pulsefeed/internal/provider"
)

const (
	// channelBatchSize bounds concurrent per-channel history fetches.
	channelBatchSize = 5
	maxChannels      = 20
	historyLimit     = 50
)

// Adapter fetches messages from a Slack-compatible conversations API.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func New(baseURL string, log *logger.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With("provider", "slack"),
	}
}

func (a *Adapter) Name() string {
	return "slack"
}

func (a *Adapter) Source() model.Source {
	return model.SourceChat
}

type channelList struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Channels []channel `json:"channels"`
}

type channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type historyResponse struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	TS       string `json:"ts"`
	User     string `json:"user"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Files    []struct {
		Name string `json:"name"`
	} `json:"files"`
}

func (a *Adapter) Fetch(ctx context.Context, credential string, windowDays int) ([]provider.RawMessage, error) {
	channels, err := a.listChannels(ctx, credential)
	if err != nil {
		return nil, err
	}
	if len(channels) > maxChannels {
		channels = channels[:maxChannels]
	}

	oldest := time.Now().AddDate(0, 0, -windowDays).Unix()

	// Pull channel histories in bounded batches. A single failed channel
	// drops that channel, it does not fail the whole call.
	perChannel := make([][]provider.RawMessage, len(channels))
	var mu sync.Mutex
	var fatal error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(channelBatchSize)
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			msgs, err := a.channelHistory(gctx, credential, ch, oldest)
			if err != nil {
				if provider.AsCredentialError(err) != nil {
					mu.Lock()
					fatal = err
					mu.Unlock()
					return err
				}
				a.logger.Warn("Dropping channel after failed history fetch:", ch.ID, err)
				return nil
			}
			perChannel[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if fatal != nil {
			return nil, fatal
		}
		return nil, err
	}

	var result []provider.RawMessage
	for _, msgs := range perChannel {
		result = append(result, msgs...)
	}

	a.logger.Info("Fetched", len(result), "messages from", len(channels), "chat channels")
	return result, nil
}

func (a *Adapter) listChannels(ctx context.Context, credential string) ([]channel, error) {
	var list channelList
	params := url.Values{"types": {"public_channel,private_channel"}}
	if err := a.call(ctx, credential, "conversations.list", params, &list); err != nil {
		return nil, err
	}
	if !list.OK {
		return nil, a.apiError(list.Error)
	}
	return list.Channels, nil
}

func (a *Adapter) channelHistory(ctx context.Context, credential string, ch channel, oldest int64) ([]provider.RawMessage, error) {
	var history historyResponse
	params := url.Values{
		"channel": {ch.ID},
		"oldest":  {strconv.FormatInt(oldest, 10)},
		"limit":   {strconv.Itoa(historyLimit)},
	}
	if err := a.call(ctx, credential, "conversations.history", params, &history); err != nil {
		return nil, err
	}
	if !history.OK {
		return nil, a.apiError(history.Error)
	}

	raws := make([]provider.RawMessage, 0, len(history.Messages))
	for _, msg := range history.Messages {
		raw, err := a.toRaw(ch, msg)
		if err != nil {
			// Malformed item: drop it, keep the rest of the channel.
			a.logger.Warn("Dropping malformed chat message in channel", ch.ID, ":", err)
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// toRaw converts one conversations.history entry into the provider-native
// record. The ts value doubles as the stable per-channel message id.
func (a *Adapter) toRaw(ch channel, msg chatMessage) (provider.RawMessage, error) {
	if msg.TS == "" {
		return provider.RawMessage{}, provider.NewError(a.Name(), provider.Malformed, fmt.Errorf("message without ts"))
	}
	secs, err := strconv.ParseFloat(msg.TS, 64)
	if err != nil {
		return provider.RawMessage{}, provider.NewError(a.Name(), provider.Malformed, fmt.Errorf("unparseable ts %q: %w", msg.TS, err))
	}

	sender := msg.Username
	if sender == "" {
		sender = msg.User
	}

	return provider.RawMessage{
		ProviderID:     ch.ID + ":" + msg.TS,
		Sender:         sender,
		Snippet:        msg.Text,
		Timestamp:      time.Unix(int64(secs), 0).UTC(),
		HasAttachments: len(msg.Files) > 0,
		Metadata: map[string]any{
			"channel":      ch.ID,
			"channel_name": ch.Name,
		},
	}, nil
}

func (a *Adapter) call(ctx context.Context, credential, method string, params url.Values, out any) error {
	endpoint := a.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return provider.NewError(a.Name(), provider.Unavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return provider.NewError(a.Name(), provider.Unavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.NewError(a.Name(), provider.KindFromStatus(resp.StatusCode),
			fmt.Errorf("%s returned status %d", method, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.NewError(a.Name(), provider.Malformed, fmt.Errorf("failed to decode %s response: %w", method, err))
	}
	return nil
}

// apiError maps Slack-style ok:false error strings onto the taxonomy.
func (a *Adapter) apiError(code string) error {
	kind := provider.Unavailable
	switch code {
	case "invalid_auth", "token_expired", "token_revoked", "not_authed", "account_inactive":
		kind = provider.Unauthorized
	case "ratelimited", "rate_limited":
		kind = provider.RateLimited
	}
	return provider.NewError(a.Name(), kind, fmt.Errorf("api error: %s", code))
}
