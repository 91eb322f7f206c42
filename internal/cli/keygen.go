package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/licensebot/licensebot/internal/security"
)

func newKeygenCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print freshly generated license keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			for i := 0; i < count; i++ {
				key, err := security.GenerateLicenseKey()
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys")
	return cmd
}

// hash-password reads the secret from stdin so it never lands in shell
// history.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read an admin password from stdin and print its bcrypt hash for ADMIN_PASSWORD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := security.HashSecret(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
