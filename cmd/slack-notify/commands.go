package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/slackclient"
)

// SendConfig holds configuration for the send command
type SendConfig struct {
	Channel  string
	Message  string
	ThreadTS string
}

// NewSendConfig creates a new SendConfig with default values
func NewSendConfig() *SendConfig {
	return &SendConfig{
		Channel:  "",
		Message:  "",
		ThreadTS: "",
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to a Slack channel",
		Long: `Send a message to a Slack channel. The webhook is used when
SLACK_WEBHOOK_URL is set; SLACK_BOT_TOKEN is the fallback.

Examples:
  slack-notify send --channel "#alerts" --message "Deploy finished"
  slack-notify send --channel C0123456789 --message "Done" --thread-ts 1700000000.123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd, getSendConfigFromFlags(cmd))
		},
	}

	defaults := NewSendConfig()
	cmd.Flags().String("channel", defaults.Channel, "Channel name (#alerts) or ID")
	cmd.Flags().String("message", defaults.Message, "Message text (Slack mrkdwn)")
	cmd.Flags().String("thread-ts", defaults.ThreadTS, "Thread timestamp to reply to")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func getSendConfigFromFlags(cmd *cobra.Command) *SendConfig {
	config := NewSendConfig()
	if channel, err := cmd.Flags().GetString("channel"); err == nil {
		config.Channel = channel
	}
	if message, err := cmd.Flags().GetString("message"); err == nil {
		config.Message = message
	}
	if threadTS, err := cmd.Flags().GetString("thread-ts"); err == nil {
		config.ThreadTS = threadTS
	}
	return config
}

func send(cmd *cobra.Command, config *SendConfig) error {
	res, err := newClient(cmd).Send(cmd.Context(), slackclient.SendRequest{
		Channel:  config.Channel,
		Message:  config.Message,
		ThreadTS: config.ThreadTS,
	})
	if err != nil {
		return err
	}

	logger.G(cmd.Context()).WithField("transport", res.Transport).Debug("message delivered")

	var msg string
	switch {
	case res.Transport == slackclient.TransportWebhook:
		msg = "Message sent via webhook"
	case config.ThreadTS != "":
		msg = fmt.Sprintf("Reply sent to %s in thread %s (ts: %s)", config.Channel, config.ThreadTS, res.Timestamp)
	default:
		msg = fmt.Sprintf("Message sent to %s (ts: %s)", config.Channel, res.Timestamp)
	}
	cli.Printer(cmd).Success(msg)
	return nil
}

// UploadConfig holds configuration for the upload command
type UploadConfig struct {
	Channel string
	File    string
	Message string
}

// NewUploadConfig creates a new UploadConfig with default values
func NewUploadConfig() *UploadConfig {
	return &UploadConfig{
		Channel: "",
		File:    "",
		Message: "",
	}
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file to a Slack channel",
		Long: `Upload a file to a Slack channel. Requires SLACK_BOT_TOKEN.

Examples:
  slack-notify upload --channel "#reports" --file report.csv
  slack-notify upload --channel "#reports" --file chart.png --message "Weekly numbers"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return upload(cmd, getUploadConfigFromFlags(cmd))
		},
	}

	defaults := NewUploadConfig()
	cmd.Flags().String("channel", defaults.Channel, "Channel name (#reports) or ID")
	cmd.Flags().String("file", defaults.File, "Path of the file to upload")
	cmd.Flags().String("message", defaults.Message, "Comment posted with the file")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func getUploadConfigFromFlags(cmd *cobra.Command) *UploadConfig {
	config := NewUploadConfig()
	if channel, err := cmd.Flags().GetString("channel"); err == nil {
		config.Channel = channel
	}
	if file, err := cmd.Flags().GetString("file"); err == nil {
		config.File = file
	}
	if message, err := cmd.Flags().GetString("message"); err == nil {
		config.Message = message
	}
	return config
}

func upload(cmd *cobra.Command, config *UploadConfig) error {
	res, err := newClient(cmd).Upload(cmd.Context(), slackclient.UploadRequest{
		Channel: config.Channel,
		Path:    config.File,
		Message: config.Message,
	})
	if err != nil {
		return err
	}

	cli.Printer(cmd).Success(fmt.Sprintf("Uploaded %s to %s (file id: %s)", res.Title, config.Channel, res.FileID))
	return nil
}
