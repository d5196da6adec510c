// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/AleutianAI/AleutianChat/pkg/ux"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage stored conversations",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryReadCmd(),
		newHistoryRenameCmd(),
		newHistoryDeleteCmd(),
		newHistoryDeleteAllCmd(),
	)
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var flagOffset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your conversations, most recent activity first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, err := newClient().ListConversations(cmd.Context(), flagOffset)
			if err != nil {
				return err
			}
			if len(conversations) == 0 {
				ux.Muted("no conversations")
				return nil
			}
			ux.RenderConversationList(os.Stdout, conversations)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	return cmd
}

func newHistoryReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := newClient().ReadConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ux.RenderTranscript(os.Stdout, stored.Messages)
			return nil
		},
	}
}

func newHistoryRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation-id> <title>",
		Short: "Retitle a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().RenameConversation(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			ux.Success("conversation renamed")
			if cache := openCacheQuiet(); cache != nil {
				defer cache.Close()
				_ = cache.RememberConversation(args[0], args[1])
			}
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			ux.Success("conversation deleted")
			if cache := openCacheQuiet(); cache != nil {
				defer cache.Close()
				_ = cache.Forget(args[0])
			}
			return nil
		},
	}
}

func newHistoryDeleteAllCmd() *cobra.Command {
	var flagYes bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every conversation you own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagYes {
				confirmed, err := confirmDeleteAll()
				if err != nil {
					return err
				}
				if !confirmed {
					ux.Muted("aborted")
					return nil
				}
			}

			if err := newClient().DeleteAllConversations(cmd.Context()); err != nil {
				return err
			}
			ux.Success("all conversations deleted")
			if cache := openCacheQuiet(); cache != nil {
				defer cache.Close()
				_ = cache.Clear()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagYes, "yes", false, "skip the confirmation prompt")
	return cmd
}

// confirmDeleteAll asks for explicit confirmation before the
// irreversible bulk delete.
func confirmDeleteAll() (bool, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Delete ALL conversations?").
			Description("This removes every conversation and message you own. It cannot be undone.").
			Affirmative("Delete everything").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return confirmed, nil
}
