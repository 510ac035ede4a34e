// Package discordbot is the faucet's optional Discord front-end. It is
// only started when a Discord token is configured; otherwise the HTTP
// surface in internal/api is the sole intake path.
package discordbot

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Scheduler is the subset of *scheduler.Scheduler the bot needs.
type Scheduler interface {
	Submit(address common.Address) bool
}

// command is the chat prefix users type to request a grant, e.g.
// "!faucet 0xabc...".
const command = "!faucet"

// Bot wraps a discordgo session and forwards recognized commands to the
// scheduler's intake channel.
type Bot struct {
	session   *discordgo.Session
	scheduler Scheduler
}

// New creates a Bot bound to token and scheduler. It does not connect
// until Start is called.
func New(token string, scheduler Scheduler) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	b := &Bot{session: session, scheduler: scheduler}
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

// Start opens the Discord session. Callers should defer Close.
func (b *Bot) Start() error {
	return b.session.Open()
}

// Close closes the Discord session.
func (b *Bot) Close() error {
	return b.session.Close()
}

// parseCommand extracts an address from a chat message, if it is a
// well-formed "!faucet 0x..." command. Split out from onMessageCreate so
// the parsing logic can be tested without a live Discord session.
func parseCommand(content string) (common.Address, bool) {
	fields := strings.Fields(content)
	if len(fields) != 2 || fields[0] != command {
		return common.Address{}, false
	}
	if !common.IsHexAddress(fields[1]) {
		return common.Address{}, false
	}
	return common.HexToAddress(fields[1]), true
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}

	address, ok := parseCommand(m.Content)
	if !ok {
		fields := strings.Fields(m.Content)
		if len(fields) == 2 && fields[0] == command {
			s.ChannelMessageSend(m.ChannelID, "that doesn't look like an address")
		}
		return
	}

	if !b.scheduler.Submit(address) {
		log.Error("intake channel full, dropping discord request", "address", address)
		s.ChannelMessageSend(m.ChannelID, "faucet is busy, try again later")
		return
	}

	s.ChannelMessageSend(m.ChannelID, "request accepted for "+address.Hex())
}
