// Command slack-notify posts messages and files to Slack.
package main

import (
	_ "embed"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/slackclient"
)

//go:embed SKILL.md
var skillDoc []byte

func newRootCmd() *cobra.Command {
	root := cli.NewRootCommand("slack-notify", "Send messages and files to Slack")
	root.Long = `Slack skill: send messages through an incoming webhook or a bot token and
upload files to channels.

Credentials come from SLACK_WEBHOOK_URL and SLACK_BOT_TOKEN. Uploads need the
bot token.`

	root.AddCommand(
		newSendCmd(),
		newUploadCmd(),
		cli.NewSkillCommand(skillDoc),
		cli.NewVersionCommand("slack-notify"),
	)
	return root
}

func newClient(cmd *cobra.Command) *slackclient.Client {
	cfg := cli.ConfigFrom(cmd.Context()).Slack
	return slackclient.New(slackclient.Config{
		WebhookURL: cfg.WebhookURL,
		BotToken:   cfg.BotToken,
		APIURL:     cfg.APIURL,
	})
}

func main() {
	cli.Main(newRootCmd())
}
