package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	genericErrorMessage = "❌ There was an error executing this command!"
	commandTimeout      = 30 * time.Second
)

// NewSession builds a gateway session with the intents the commands need.
// The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsDirectMessages
	return s, nil
}

type Bot struct {
	session  *discordgo.Session
	commands *Commands
	log      *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	registered map[string]bool
}

func New(session *discordgo.Session, commands *Commands, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		session:    session,
		commands:   commands,
		log:        log,
		ctx:        context.Background(),
		registered: make(map[string]bool),
	}
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	removers := []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onGuildCreate),
		b.session.AddHandler(b.onInteraction),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	b.log.Info("closing discord gateway")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

func (b *Bot) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("discord bot ready", "user", userTag(r.User), "bot_id", r.User.ID, "guilds", len(r.Guilds))
	for _, g := range r.Guilds {
		b.registerCommands(s, g.ID)
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.log.Info("guild available", "guild_id", g.ID, "name", g.Name)
	b.registerCommands(s, g.ID)
}

func (b *Bot) registerCommands(s *discordgo.Session, guildID string) {
	b.mu.Lock()
	if b.registered[guildID] {
		b.mu.Unlock()
		return
	}
	b.registered[guildID] = true
	b.mu.Unlock()

	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Definitions()); err != nil {
		b.mu.Lock()
		delete(b.registered, guildID)
		b.mu.Unlock()
		b.log.Error("register slash commands", "guild_id", guildID, "error", err)
		return
	}
	b.log.Info("slash commands registered", "guild_id", guildID)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	inv, ok := invocationFrom(i)
	if !ok {
		return
	}
	if !isKnownCommand(inv.Command) {
		b.log.Warn("unknown command", "command", inv.Command, "user_id", inv.User.ID)
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.log.Error("defer interaction reply", "command", inv.Command, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.baseContext(), commandTimeout)
	defer cancel()
	embed, err := b.commands.Execute(ctx, inv)
	if err != nil {
		b.log.Error("command failed", "command", inv.Command, "user_id", inv.User.ID, "error", err)
		_, ferr := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: genericErrorMessage,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if ferr != nil {
			b.log.Error("send error follow-up", "command", inv.Command, "error", ferr)
		}
		return
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		b.log.Error("edit interaction reply", "command", inv.Command, "error", err)
		return
	}
	b.log.Info("command executed", "command", inv.Command, "user", inv.User.Tag)
}

func isKnownCommand(name string) bool {
	for _, def := range Definitions() {
		if def.Name == name {
			return true
		}
	}
	return false
}

// invocationFrom extracts the caller and options from a slash command
// interaction. ok is false for any other interaction type.
func invocationFrom(i *discordgo.InteractionCreate) (inv Invocation, ok bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return Invocation{}, false
	}
	data := i.ApplicationCommandData()
	inv = Invocation{Command: data.Name, GuildID: i.GuildID}

	caller := i.User
	if i.Member != nil && i.Member.User != nil {
		caller = i.Member.User
	}
	if caller != nil {
		inv.User = User{ID: caller.ID, Tag: userTag(caller)}
	}

	for _, opt := range data.Options {
		switch opt.Name {
		case "page":
			inv.Page = int(opt.IntValue())
		case "user":
			u := opt.UserValue(nil)
			if data.Resolved != nil {
				if resolved, found := data.Resolved.Users[u.ID]; found {
					u = resolved
				}
			}
			inv.Target = &User{ID: u.ID, Tag: userTag(u)}
		}
	}
	return inv, true
}

// userTag is name#discriminator for legacy accounts and the bare username
// otherwise. Users known only by id render as a mention.
func userTag(u *discordgo.User) string {
	switch {
	case u.Username == "":
		return "<@" + u.ID + ">"
	case u.Discriminator == "" || u.Discriminator == "0":
		return u.Username
	default:
		return u.Username + "#" + u.Discriminator
	}
}
