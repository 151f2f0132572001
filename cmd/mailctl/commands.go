package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailcore/internal/app"
	"github.com/nhle/mailcore/internal/model"
)

func newInboxCmd() *cobra.Command {
	var folder string
	var unread, refresh bool

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List conversations in a folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.Inbox(cmd.Context(), flagAccount, folder, unread, refresh)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tMSGS\tUNREAD\tFROM\tSUBJECT")
			for _, s := range summaries {
				from := ""
				if len(s.Participants) > 0 {
					from = s.Participants[0]
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					s.ConvID,
					s.LatestDate.Local().Format("Jan 02 15:04"),
					s.MessageCount,
					s.UnreadCount,
					from,
					s.Subject,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "INBOX", "folder to list")
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "only conversations with unread messages")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "force a refresh from the server")
	return cmd
}

func newShowCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation (accepts a unique identifier prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.Conversation(cmd.Context(), flagAccount, args[0], refresh)
			if err != nil {
				return err
			}

			fmt.Printf("Conversation %s: %s\n", conv.ConvID, conv.Subject)
			fmt.Printf("%d messages, %d unread, participants: %s\n\n",
				conv.MessageCount, conv.UnreadCount, strings.Join(conv.Participants, ", "))

			for _, m := range conv.Messages {
				printMessage(&m, false)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "force a body refresh from the server")
	return cmd
}

func newMessageCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "message <message-id>",
		Short: "Show one message (accepts a unique identifier prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			msg, err := a.Message(cmd.Context(), flagAccount, args[0], refresh)
			if err != nil {
				return err
			}
			printMessage(msg, true)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "force a body refresh from the server")
	return cmd
}

func printMessage(m *model.Message, full bool) {
	fmt.Printf("Message-ID: %s\n", m.MessageID)
	fmt.Printf("From: %s\n", m.From.String())
	if len(m.To) > 0 {
		parts := make([]string, 0, len(m.To))
		for _, a := range m.To {
			parts = append(parts, a.String())
		}
		fmt.Printf("To: %s\n", strings.Join(parts, ", "))
	}
	fmt.Printf("Date: %s\n", m.Date.Local().Format(time.RFC1123))
	fmt.Printf("Subject: %s\n", m.Subject)

	flags := make([]string, 0, len(m.Flags))
	for _, f := range m.Flags {
		flags = append(flags, string(f))
	}
	if len(flags) > 0 {
		fmt.Printf("Flags: %s\n", strings.Join(flags, ", "))
	}
	for _, att := range m.Attachments {
		fmt.Printf("Attachment: %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
	}

	fmt.Println()
	switch {
	case m.BodyText != nil:
		fmt.Println(*m.BodyText)
	case m.BodyHTML != nil && full:
		fmt.Println(*m.BodyHTML)
	default:
		fmt.Println("(body not fetched)")
	}
}

// flagAction builds the read/unread/flag/unflag command family.
func flagAction(use, short string, run func(h *app.App, cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return run(a, cmd, args[0])
		},
	}
}

func newReadCmd() *cobra.Command {
	return flagAction("read <message-id>", "Mark a message as read", func(a *app.App, cmd *cobra.Command, id string) error {
		return a.MarkRead(cmd.Context(), flagAccount, id)
	})
}

func newUnreadCmd() *cobra.Command {
	return flagAction("unread <message-id>", "Mark a message as unread", func(a *app.App, cmd *cobra.Command, id string) error {
		return a.MarkUnread(cmd.Context(), flagAccount, id)
	})
}

func newFlagCmd() *cobra.Command {
	return flagAction("flag <message-id>", "Flag a message", func(a *app.App, cmd *cobra.Command, id string) error {
		return a.Flag(cmd.Context(), flagAccount, id)
	})
}

func newUnflagCmd() *cobra.Command {
	return flagAction("unflag <message-id>", "Remove the flag from a message", func(a *app.App, cmd *cobra.Command, id string) error {
		return a.Unflag(cmd.Context(), flagAccount, id)
	})
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <message-id> <folder>",
		Short: "Move a message to another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Move(cmd.Context(), flagAccount, args[0], args[1])
		},
	}
}

func newSearchCmd() *cobra.Command {
	var folder string
	var remoteSearch bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached messages (from:, to:, subject:, body:, is:, has:, after:, before:, date:)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")

			var msgs []model.Message
			if remoteSearch {
				msgs, err = a.SearchRemote(cmd.Context(), flagAccount, folder, query)
			} else {
				msgs, err = a.Search(cmd.Context(), flagAccount, folder, query, limit)
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tFROM\tSUBJECT\tMESSAGE-ID")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					m.Date.Local().Format("Jan 02 15:04"),
					m.From.Addr,
					m.Subject,
					m.MessageID,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "restrict to one folder")
	cmd.Flags().BoolVar(&remoteSearch, "remote", false, "search on the server instead of the cache")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum results")
	return cmd
}

func newComposeCmd() *cobra.Command {
	var to, cc, bcc []string
	var subject, body string

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Create a new draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			draft, err := a.Compose(cmd.Context(), flagAccount, to, cc, bcc, subject, body)
			if err != nil {
				return err
			}
			fmt.Printf("Draft %s saved. Use 'mailctl send %s' to send it.\n", draft.DraftID, draft.DraftID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient address (repeatable)")
	cmd.Flags().StringSliceVar(&cc, "cc", nil, "cc address (repeatable)")
	cmd.Flags().StringSliceVar(&bcc, "bcc", nil, "bcc address (repeatable)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "message subject")
	cmd.Flags().StringVarP(&body, "body", "b", "", "message body")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newReplyCmd() *cobra.Command {
	var body string
	var all bool

	cmd := &cobra.Command{
		Use:   "reply <conversation-id>",
		Short: "Create a reply draft for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			draft, err := a.Reply(cmd.Context(), flagAccount, args[0], body, all)
			if err != nil {
				return err
			}
			fmt.Printf("Reply draft %s saved. Use 'mailctl send %s' to send it.\n", draft.DraftID, draft.DraftID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "reply body")
	cmd.Flags().BoolVar(&all, "all", false, "reply to all original recipients")
	return cmd
}

func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List saved drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			drafts, err := a.Drafts(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tTO\tSUBJECT")
			for _, d := range drafts {
				to := ""
				if len(d.To) > 0 {
					to = d.To[0].Addr
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					d.DraftID,
					d.UpdatedAt.Local().Format("Jan 02 15:04"),
					to,
					d.Subject,
				)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <draft-id>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.DeleteDraft(cmd.Context(), args[0])
		},
	})

	return cmd
}

func newSendCmd() *cobra.Command {
	var token string
	var direct bool

	cmd := &cobra.Command{
		Use:   "send <draft-id>",
		Short: "Send a draft through the safety pipeline",
		Long: `Send a draft. Without --token, the draft is validated and a
confirmation token is printed; run the command again with --token to
actually send. Use --now to skip confirmation on accounts that allow it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if direct {
				messageID, err := a.SendDirect(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Sent. Message-ID: <%s>\n", messageID)
				return nil
			}

			if token == "" {
				conf, err := a.PrepareSend(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("About to send %q to %s.\n", conf.Subject, strings.Join(conf.Recipients, ", "))
				fmt.Printf("Confirm with:\n  mailctl send %s --token %s\n", conf.DraftID, conf.Token)
				fmt.Printf("Token expires at %s.\n", conf.ExpiresAt.Local().Format(time.Kitchen))
				return nil
			}

			messageID, err := a.ConfirmSend(cmd.Context(), args[0], token)
			if err != nil {
				return err
			}
			fmt.Printf("Sent. Message-ID: <%s>\n", messageID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "confirmation token from a previous send")
	cmd.Flags().BoolVar(&direct, "now", false, "send immediately without confirmation")

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <draft-id>",
		Short: "Retry a confirmed draft whose send attempt failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			messageID, err := a.ResendDraft(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sent. Message-ID: <%s>\n", messageID)
			return nil
		},
	})

	return cmd
}

func newSendLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sendlog",
		Short: "Show the append-only send log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.AuditEntries()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACCOUNT\tTO\tSUBJECT\tMESSAGE-ID")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("Jan 02 15:04"),
					e.Account,
					strings.Join(e.To, ", "),
					e.Subject,
					e.MessageID,
				)
			}
			return w.Flush()
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Messages:      %d\n", stats.MessageCount)
			fmt.Printf("Conversations: %d\n", stats.ConversationCount)
			fmt.Printf("Cache size:    %.1f KB\n", float64(stats.CacheSizeBytes)/1024)
			if stats.OldestMessage != nil {
				fmt.Printf("Oldest:        %s\n", stats.OldestMessage.Local().Format(time.RFC1123))
			}
			if stats.NewestMessage != nil {
				fmt.Printf("Newest:        %s\n", stats.NewestMessage.Local().Format(time.RFC1123))
			}
			if stats.LastSync != nil {
				fmt.Printf("Last sync:     %s\n", stats.LastSync.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SQL query against the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.RawQuery(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}
