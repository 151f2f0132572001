package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhle/mailcore/internal/credential"
	"github.com/nhle/mailcore/internal/model"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored account credentials",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <account>",
			Short: "Store IMAP and SMTP passwords for an account in the system keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := model.LoadConfig(flagConfig)
				if err != nil {
					return err
				}
				name, _, err := cfg.GetAccount(args[0])
				if err != nil {
					return err
				}

				imapPass, err := promptPassword(fmt.Sprintf("IMAP password for %s: ", name))
				if err != nil {
					return err
				}
				if err := credential.Set(credential.IMAPKey(name), imapPass); err != nil {
					return err
				}

				smtpPass, err := promptPassword(fmt.Sprintf("SMTP password for %s (empty to reuse IMAP): ", name))
				if err != nil {
					return err
				}
				if smtpPass == "" {
					smtpPass = imapPass
				}
				if err := credential.Set(credential.SMTPKey(name), smtpPass); err != nil {
					return err
				}

				fmt.Printf("Credentials stored for %s.\n", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear <account>",
			Short: "Remove stored passwords for an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := model.LoadConfig(flagConfig)
				if err != nil {
					return err
				}
				name, _, err := cfg.GetAccount(args[0])
				if err != nil {
					return err
				}

				if err := credential.Delete(credential.IMAPKey(name)); err != nil {
					return err
				}
				if err := credential.Delete(credential.SMTPKey(name)); err != nil {
					return err
				}

				fmt.Printf("Credentials cleared for %s.\n", name)
				return nil
			},
		},
	)

	return cmd
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
