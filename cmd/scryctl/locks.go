package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and recover generation locks",
	}
	cmd.AddCommand(c.newLocksListCmd(), c.newLocksForceDeleteCmd(), c.newLocksSweepCmd())
	return cmd
}

// withLocks opens the configured lock store for the duration of fn.
func (c *cli) withLocks(cmd *cobra.Command, fn func(locks lockAdmin) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	log, err := c.logger(cmd)
	if err != nil {
		return err
	}
	locks, closeFn, err := c.env.openLocks(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open lock store: %w", err)
	}
	defer func() { _ = closeFn() }()
	return fn(locks)
}

func (c *cli) newLocksListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generation locks, optionally for one user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID := uuid.Nil
			if user != "" {
				id, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				userID = id
			}
			return c.withLocks(cmd, func(locks lockAdmin) error {
				rows, err := locks.List(cmd.Context(), userID)
				if err != nil {
					return err
				}
				now := c.env.now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSUBJECT\tUSER\tKIND\tSTATUS\tOWNER\tEXPIRES")
				for _, l := range rows {
					expires := l.ExpiresAt.UTC().Format(time.RFC3339)
					if l.Expired(now) {
						expires += " (expired)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						l.ID, l.SubjectID, l.UserID, l.WorkKind, l.Status, l.OwnerToken, expires)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only list locks held for this user ID")
	return cmd
}

func (c *cli) newLocksForceDeleteCmd() *cobra.Command {
	var subject, user, kind string
	cmd := &cobra.Command{
		Use:   "force-delete",
		Short: "Delete a lock regardless of its owner or status",
		Long: `force-delete removes every row for a (subject, user, kind) key. Use it to
recover work stuck behind a lock whose owner died before its TTL ran out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subjectID, err := uuid.Parse(subject)
			if err != nil {
				return fmt.Errorf("invalid --subject: %w", err)
			}
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			workKind, err := domain.ParseWorkKind(kind)
			if err != nil {
				return err
			}
			return c.withLocks(cmd, func(locks lockAdmin) error {
				n, err := locks.ForceDelete(cmd.Context(), subjectID, userID, workKind)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d lock(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject ID (required)")
	cmd.Flags().StringVar(&user, "user", "", "user ID (required)")
	cmd.Flags().StringVar(&kind, "kind", string(domain.WorkKindBoth), "work kind: flashcards, quiz or both")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) newLocksSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every expired lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLocks(cmd, func(locks lockAdmin) error {
				n, err := locks.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired lock(s)\n", n)
				return nil
			})
		},
	}
}
