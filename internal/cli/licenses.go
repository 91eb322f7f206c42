package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/service"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	activeStyle  = cellStyle.Foreground(lipgloss.Color("42"))
	revokedStyle = cellStyle.Foreground(lipgloss.Color("196"))
	footerStyle  = lipgloss.NewStyle().Faint(true)
)

const statusColumn = 3

func newLicensesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "Inspect and manage the license registry",
	}
	cmd.AddCommand(newLicensesListCommand(opts), newLicensesRevokeCommand(opts))
	return cmd
}

func newLicensesListCommand(opts *options) *cobra.Command {
	var (
		page   int
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a page of licenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLicenses(cmd.Context(), func(ctx context.Context, licenses *service.LicenseService) error {
				res, err := licenses.Search(ctx, repository.LicenseQuery{
					PageRequest: repository.PageRequest{Page: page, PageSize: limit},
					Search:      search,
				})
				if err != nil {
					return err
				}
				return renderLicenses(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "licenses per page")
	cmd.Flags().StringVar(&search, "search", "", "filter by username, user id or key")
	return cmd
}

func newLicensesRevokeCommand(opts *options) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Revoke the license held by a Discord user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			ctx := service.WithRevocationSource(cmd.Context(), "cli")
			return opts.withLicenses(ctx, func(ctx context.Context, licenses *service.LicenseService) error {
				lic, err := licenses.Revoke(ctx, userID, by)
				var already *service.AlreadyRevokedError
				switch {
				case errors.Is(err, repository.ErrLicenseNotFound):
					return fmt.Errorf("no license found for user %s", userID)
				case errors.As(err, &already):
					return fmt.Errorf("license for user %s was already revoked", userID)
				case err != nil:
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s (%s) key %s\n", lic.Username, lic.UserID, lic.LicenseKey)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "cli", "identifier recorded as the revoker")
	return cmd
}

func renderLicenses(w io.Writer, res repository.PageResult[domain.License]) error {
	if len(res.Items) == 0 {
		_, err := fmt.Fprintln(w, "No licenses found.")
		return err
	}

	rows := make([][]string, 0, len(res.Items))
	for _, l := range res.Items {
		revoked := "-"
		if l.RevokedAt != nil {
			revoked = l.RevokedAt.Format("2006-01-02 15:04")
			if l.RevokedBy != nil {
				revoked += " by " + *l.RevokedBy
			}
		}
		rows = append(rows, []string{
			l.Username,
			l.UserID,
			l.LicenseKey,
			string(l.Status),
			l.ActivatedAt.Format("2006-01-02 15:04"),
			revoked,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("USER", "USER ID", "KEY", "STATUS", "ACTIVATED", "REVOKED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == statusColumn && rows[row][col] == string(domain.LicenseStatusRevoked):
				return revokedStyle
			case col == statusColumn:
				return activeStyle
			default:
				return cellStyle
			}
		})

	footer := footerStyle.Render(fmt.Sprintf("Page %d of %d (%d total)", res.Page, res.TotalPages, res.Total))
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, t.String(), footer))
	return err
}
