// Package slackclient posts messages and files to Slack through an incoming
// webhook or the Web API.
package slackclient

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

// Transport identifies how a message reached Slack.
type Transport string

const (
	TransportWebhook Transport = "webhook"
	TransportBot     Transport = "bot"
)

const (
	// DefaultTimeout bounds every HTTP request to Slack.
	DefaultTimeout = 30 * time.Second

	conversationsPageSize = 200
)

var channelIDRe = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

// Config holds Slack credentials. Either WebhookURL or BotToken is enough to
// send; uploads need BotToken.
type Config struct {
	WebhookURL string
	BotToken   string
	// APIURL overrides the Web API base URL.
	APIURL     string
	HTTPClient *http.Client
}

// SendRequest is a message to post.
type SendRequest struct {
	Channel  string
	Message  string
	ThreadTS string
}

// SendResult reports where a message was delivered.
type SendResult struct {
	Transport Transport
	Channel   string
	Timestamp string
}

// UploadRequest is a local file to share in a channel.
type UploadRequest struct {
	Channel string
	Path    string
	Message string
}

// UploadResult describes an uploaded file.
type UploadResult struct {
	FileID    string
	Title     string
	ChannelID string
}

// Client talks to Slack.
type Client struct {
	cfg        Config
	httpClient *http.Client
	api        *slack.Client
}

// New returns a client for cfg. No request is made until Send or Upload.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	c := &Client{cfg: cfg, httpClient: httpClient}
	if cfg.BotToken != "" {
		opts := []slack.Option{slack.OptionHTTPClient(httpClient)}
		if cfg.APIURL != "" {
			apiURL := cfg.APIURL
			if !strings.HasSuffix(apiURL, "/") {
				apiURL += "/"
			}
			opts = append(opts, slack.OptionAPIURL(apiURL))
		}
		c.api = slack.New(cfg.BotToken, opts...)
	}
	return c
}

// Send posts req.Message. The webhook is tried first when configured; on
// failure the bot token is used if present.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, skillerr.Configuration("message must not be empty")
	}
	if c.cfg.WebhookURL == "" && c.api == nil {
		return nil, skillerr.Configuration("Neither SLACK_WEBHOOK_URL nor SLACK_BOT_TOKEN is set. Set one of these environment variables.")
	}

	log := logger.G(ctx).WithField("channel", req.Channel)

	var webhookErr error
	if c.cfg.WebhookURL != "" {
		msg := &slack.WebhookMessage{Text: req.Message, ThreadTimestamp: req.ThreadTS}
		webhookErr = slack.PostWebhookCustomHTTPContext(ctx, c.cfg.WebhookURL, c.httpClient, msg)
		if webhookErr == nil {
			log.Debug("message sent via webhook")
			return &SendResult{Transport: TransportWebhook, Channel: req.Channel}, nil
		}
		webhookErr = c.redact(webhookErr)
		if c.api == nil {
			return nil, skillerr.Collaborator(webhookErr, "failed to send message via webhook")
		}
		log.WithError(webhookErr).Warn("webhook delivery failed, falling back to bot token")
	}

	if req.Channel == "" {
		return nil, skillerr.Configuration("channel is required when sending with SLACK_BOT_TOKEN")
	}

	opts := []slack.MsgOption{slack.MsgOptionText(req.Message, false)}
	if req.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(req.ThreadTS))
	}
	channelID, ts, err := c.api.PostMessageContext(ctx, req.Channel, opts...)
	if err != nil {
		return nil, skillerr.Collaborator(c.redact(err), "failed to send message to %s", req.Channel)
	}

	log.WithField("ts", ts).Debug("message sent via bot token")
	return &SendResult{Transport: TransportBot, Channel: channelID, Timestamp: ts}, nil
}

// Upload shares the file at req.Path in req.Channel using the files v2 flow.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	info, err := os.Stat(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, skillerr.NotFound("File not found: %s", req.Path)
		}
		return nil, skillerr.Collaborator(err, "failed to read %s", req.Path)
	}
	if info.IsDir() {
		return nil, skillerr.Configuration("%s is a directory", req.Path)
	}
	if info.Size() == 0 {
		return nil, skillerr.Configuration("%s is empty; Slack rejects empty uploads", req.Path)
	}
	if c.api == nil {
		return nil, skillerr.Configuration("SLACK_BOT_TOKEN environment variable not set (file uploads require a bot token)")
	}

	channelID, err := c.ResolveChannel(ctx, req.Channel)
	if err != nil {
		return nil, err
	}

	title := filepath.Base(req.Path)
	summary, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:           req.Path,
		FileSize:       int(info.Size()),
		Filename:       title,
		Title:          title,
		InitialComment: req.Message,
		Channel:        channelID,
	})
	if err != nil {
		return nil, skillerr.Collaborator(c.redact(err), "failed to upload %s to %s", title, req.Channel)
	}

	logger.G(ctx).WithField("channel", channelID).WithField("file_id", summary.ID).Debug("file uploaded")
	return &UploadResult{FileID: summary.ID, Title: summary.Title, ChannelID: channelID}, nil
}

// ResolveChannel turns "#name" or "name" into a conversation ID. Values that
// already look like IDs are returned unchanged.
func (c *Client) ResolveChannel(ctx context.Context, channel string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", skillerr.Configuration("channel is required")
	}
	if channelIDRe.MatchString(channel) {
		return channel, nil
	}
	if c.api == nil {
		return "", skillerr.Configuration("SLACK_BOT_TOKEN environment variable not set")
	}

	name := strings.TrimPrefix(channel, "#")
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           conversationsPageSize,
		Types:           []string{"public_channel", "private_channel"},
	}
	var seen []string
	for {
		channels, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", skillerr.Collaborator(c.redact(err), "failed to list channels")
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
			seen = append(seen, ch.Name)
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	msg := "Channel not found: #" + name
	if suggestion := utils.ClosestMatch(name, seen); suggestion != "" {
		msg += " (did you mean #" + suggestion + "?)"
	}
	return "", skillerr.NotFound("%s", msg)
}

// redact strips credentials from collaborator errors, which may embed the
// webhook URL.
func (c *Client) redact(err error) error {
	msg := err.Error()
	if c.cfg.WebhookURL != "" {
		msg = strings.ReplaceAll(msg, c.cfg.WebhookURL, "<webhook>")
	}
	if c.cfg.BotToken != "" {
		msg = strings.ReplaceAll(msg, c.cfg.BotToken, "<redacted-token>")
	}
	return errors.New(utils.RedactSecrets(msg))
}
