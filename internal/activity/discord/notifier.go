package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

var kindColors = map[treasury.ActivityKind]int{
	treasury.KindCommunityCreated: 0x0099ff,
	treasury.KindProposalCreated:  0xf1c40f,
	treasury.KindProposalApproved: 0x9b59b6,
	treasury.KindProposalExecuted: 0x2ecc71,
	treasury.KindTreasuryFunded:   0x1abc9c,
	treasury.KindProofAttached:    0x95a5a6,
}

type sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts activities to a Discord channel as embeds.
type Notifier struct {
	session   sender
	channelID string
}

func New(token, channelID string) (*Notifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &Notifier{session: session, channelID: channelID}, nil
}

func (n *Notifier) Publish(ctx context.Context, a *treasury.Activity) error {
	_, err := n.session.ChannelMessageSendEmbed(n.channelID, buildEmbed(a), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending discord message: %w", err)
	}

	return nil
}

func buildEmbed(a *treasury.Activity) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       string(a.Kind),
		Description: activity.Summary(a),
		Color:       kindColors[a.Kind],
		Timestamp:   a.CreatedAt.Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name: formatAddress(a.Actor),
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Community " + a.CommunityID.String(),
		},
	}

	if a.Amount.Valid {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Amount",
			Value:  a.Amount.Decimal.StringFixed(2),
			Inline: true,
		})
	}

	if a.ProposalID != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Proposal",
			Value:  a.ProposalID.String(),
			Inline: true,
		})
	}

	return embed
}

func formatAddress(addr string) string {
	if len(addr) > 16 {
		return addr[:8] + "..." + addr[len(addr)-8:]
	}

	return addr
}
