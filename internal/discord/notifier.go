package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/money"
)

// BigWinNotifier posts a webhook message when a round pays at least
// Multiplier times its bet
type BigWinNotifier struct {
	session    WebhookSession
	webhookID  string
	token      string
	multiplier int64
}

// NewBigWinNotifier creates a notifier. multiplier below 1 is treated as 1.
func NewBigWinNotifier(session WebhookSession, webhookID, token string, multiplier int64) *BigWinNotifier {
	if multiplier < 1 {
		multiplier = 1
	}
	return &BigWinNotifier{session: session, webhookID: webhookID, token: token, multiplier: multiplier}
}

// IsBigWin reports whether result qualifies for a notification
func (n *BigWinNotifier) IsBigWin(result *entities.GameResult) bool {
	if !result.IsWin() || result.Bet <= 0 {
		return false
	}
	return result.Payout/result.Bet >= n.multiplier
}

// Publish posts the result if it is a big win
func (n *BigWinNotifier) Publish(ctx context.Context, result *entities.GameResult) error {
	if !n.IsBigWin(result) {
		return nil
	}

	params := &discordgo.WebhookParams{
		Username: "Spinz",
		Embeds:   []*discordgo.MessageEmbed{createBigWinEmbed(result)},
	}
	if _, err := n.session.WebhookExecute(n.webhookID, n.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("error posting big win %s: %w", result.ID, err)
	}
	return nil
}

// createBigWinEmbed creates the message embed announcing a win
func createBigWinEmbed(result *entities.GameResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Big win!",
		Description: strings.Join(result.Outcome, " "),
		Color:       0xFFD700, // Gold
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Game", Value: result.GameID, Inline: true},
			{Name: "Bet", Value: money.Format(result.Bet, result.Currency) + " " + result.Currency, Inline: true},
			{Name: "Payout", Value: money.Format(result.Payout, result.Currency) + " " + result.Currency, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Round " + result.ID},
	}
	if !result.Timestamp.IsZero() {
		embed.Timestamp = result.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	if result.BonusTriggered {
		embed.Title = "Jackpot!"
	}
	return embed
}
