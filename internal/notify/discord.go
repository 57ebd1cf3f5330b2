package notify

import (
	"context"
	"net/http"
	"strings"
)

const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096

	colorInfo    = 0x3b82f6
	colorResolve = 0x22c55e
	colorAlert   = 0xef4444
)

// DiscordSender posts embeds to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]any{
		"embeds": []discordEmbed{{
			Title:       truncate(title, discordMaxTitle),
			Description: truncate(message, discordMaxDescription),
			Color:       embedColor(title),
		}},
		"allowed_mentions": map[string]any{"parse": []string{}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColor(title string) int {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "emergency"), strings.Contains(t, "dispute"):
		return colorAlert
	case strings.Contains(t, "resolved"), strings.Contains(t, "claim"):
		return colorResolve
	default:
		return colorInfo
	}
}
