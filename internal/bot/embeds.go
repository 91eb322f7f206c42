package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/licensebot/licensebot/internal/domain"
)

const (
	colorGreen   = 0x57F287
	colorYellow  = 0xFEE75C
	colorRed     = 0xED4245
	colorBlurple = 0x5865F2

	footerText = "License Management System"
)

func newEmbed(color int, title, description string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       color,
		Title:       title,
		Description: description,
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

// Discord timestamp markup: R renders relative ("3 days ago"), F full date.
func relativeTime(t time.Time) string { return fmt.Sprintf("<t:%d:R>", t.Unix()) }

func fullTime(t time.Time) string { return fmt.Sprintf("<t:%d:F>", t.Unix()) }

func statusLabel(l *domain.License) string {
	if l.IsActive() {
		return "✅ Active"
	}
	return "❌ Revoked"
}

// revokerMention renders snowflake ids as mentions and anything else
// ("web-admin", "cli") verbatim.
func revokerMention(revokedBy *string) string {
	if revokedBy == nil || *revokedBy == "" {
		return "unknown"
	}
	if strings.Trim(*revokedBy, "0123456789") == "" {
		return "<@" + *revokedBy + ">"
	}
	return *revokedBy
}

func alreadyActivatedEmbed(l *domain.License) *discordgo.MessageEmbed {
	return newEmbed(colorYellow, "⚠️ License Already Activated",
		"You have already activated a license for this account.",
		field("License Key", "`"+l.LicenseKey+"`", true),
		field("Status", statusLabel(l), true),
		field("Activated", relativeTime(l.ActivatedAt), false),
	)
}

func activationFailedEmbed() *discordgo.MessageEmbed {
	return newEmbed(colorRed, "❌ Activation Failed",
		"An error occurred while creating your license. Please contact an administrator.")
}

func activationDMEmbed(l *domain.License) *discordgo.MessageEmbed {
	e := newEmbed(colorGreen, "🎉 License Activated Successfully!",
		"Your license has been activated. Keep this key safe!",
		field("🔑 License Key", "```"+l.LicenseKey+"```", false),
		field("👤 Account", l.Username, true),
		field("📅 Activated", fullTime(l.ActivatedAt), true),
	)
	e.Footer.Text = "Do not share this key with anyone!"
	return e
}

func activatedEmbed(roleID string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{}
	if roleID != "" {
		fields = append(fields, field("Role Assigned", "<@&"+roleID+">", true))
	}
	fields = append(fields, field("Status", "✅ Active", true))
	return newEmbed(colorGreen, "✅ License Activated",
		"Your license has been activated successfully! Check your DMs for your license key.",
		fields...)
}

func partialActivationEmbed(l *domain.License) *discordgo.MessageEmbed {
	return newEmbed(colorYellow, "⚠️ Partial Activation",
		"Your license was created but there was an issue with role assignment or sending DM.",
		field("🔑 License Key", "`"+l.LicenseKey+"`", false),
		field("Note", "Please ensure your DMs are open and contact an admin if you need the role assigned.", false),
	)
}

func noLicensesEmbed() *discordgo.MessageEmbed {
	return newEmbed(colorYellow, "📋 License Database", "No licenses found in the database.")
}

func licenseDatabaseEmbed(licenses []domain.License, total int64, page, totalPages int) *discordgo.MessageEmbed {
	e := newEmbed(colorBlurple, "📋 License Database",
		fmt.Sprintf("Showing %d of %d total licenses", len(licenses), total))
	e.Footer.Text = fmt.Sprintf("Page %d of %d | %s", page, totalPages, footerText)
	for i := range licenses {
		l := &licenses[i]
		lines := []string{
			"**Key:** `" + l.LicenseKey + "`",
			"**Status:** " + statusLabel(l),
			"**Activated:** " + relativeTime(l.ActivatedAt),
		}
		if l.RevokedAt != nil {
			lines = append(lines, fmt.Sprintf("**Revoked:** %s by %s", relativeTime(*l.RevokedAt), revokerMention(l.RevokedBy)))
		}
		e.Fields = append(e.Fields, field("👤 "+l.Username, strings.Join(lines, "\n"), false))
	}
	return e
}

func licenseNotFoundEmbed(target User) *discordgo.MessageEmbed {
	return newEmbed(colorRed, "❌ License Not Found",
		fmt.Sprintf("No license found for %s.", target.Tag))
}

func alreadyRevokedEmbed(target User, l *domain.License) *discordgo.MessageEmbed {
	revokedAt := "unknown"
	if l.RevokedAt != nil {
		revokedAt = fullTime(*l.RevokedAt)
	}
	return newEmbed(colorYellow, "⚠️ Already Revoked",
		fmt.Sprintf("The license for %s is already revoked.", target.Tag),
		field("Revoked At", revokedAt, true),
		field("Revoked By", revokerMention(l.RevokedBy), true),
	)
}

func revokedEmbed(target, admin User, l *domain.License) *discordgo.MessageEmbed {
	revokedAt := time.Now().UTC()
	if l.RevokedAt != nil {
		revokedAt = *l.RevokedAt
	}
	return newEmbed(colorRed, "🔒 License Revoked",
		fmt.Sprintf("Successfully revoked the license for %s.", target.Tag),
		field("User", target.Tag, true),
		field("License Key", "`"+l.LicenseKey+"`", true),
		field("Revoked By", admin.Tag, true),
		field("Revoked At", fullTime(revokedAt), false),
	)
}
