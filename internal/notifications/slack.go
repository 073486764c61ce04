package notifications

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Notifier delivers a finished summary to the leader channel. Delivery is
// best-effort: callers log failures but never roll back on them.
type Notifier interface {
	DeliverSummary(ctx context.Context, text string, audioPath string) error
}

// SlackNotifier posts summaries to a fixed Slack recipient. A user ID opens
// a DM first; a channel ID is posted to directly.
type SlackNotifier struct {
	api      *slack.Client
	leaderID string
}

// newSlackAPI creates a Slack client with a sensible HTTP timeout.
// This prevents potential hangs from Slack API calls.
func newSlackAPI(botToken string) *slack.Client {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}
	return slack.New(botToken, slack.OptionHTTPClient(httpClient))
}

func NewSlackNotifier(botToken, leaderID string) *SlackNotifier {
	return &SlackNotifier{
		api:      newSlackAPI(botToken),
		leaderID: leaderID,
	}
}

// resolveChannel opens a DM when the recipient is a user ID, otherwise the
// configured ID is already a channel.
func (n *SlackNotifier) resolveChannel(ctx context.Context) (string, error) {
	if !strings.HasPrefix(n.leaderID, "U") {
		return n.leaderID, nil
	}
	channel, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{n.leaderID},
	})
	if err != nil {
		return "", fmt.Errorf("opening DM with %s: %w", n.leaderID, err)
	}
	return channel.ID, nil
}

func (n *SlackNotifier) DeliverSummary(ctx context.Context, text string, audioPath string) error {
	channelID, err := n.resolveChannel(ctx)
	if err != nil {
		return err
	}

	_, _, err = n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionUsername("Lino"),
	)
	if err != nil {
		return fmt.Errorf("posting summary to %s: %w", channelID, err)
	}

	if audioPath == "" {
		return nil
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("stat audio artifact: %w", err)
	}

	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channelID,
		File:     audioPath,
		FileSize: int(info.Size()),
		Filename: "feedback-summary.mp3",
		Title:    "Feedback summary (audio)",
	})
	if err != nil {
		return fmt.Errorf("uploading audio to %s: %w", channelID, err)
	}

	return nil
}
