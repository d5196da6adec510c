// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command aleutian-chat is the terminal client for the AleutianChat
// gateway.
//
// # Usage
//
//	# Interactive chat (new conversation)
//	aleutian-chat chat
//
//	# Resume the most recent conversation
//	aleutian-chat chat --resume last
//
//	# Conversation management
//	aleutian-chat history list
//	aleutian-chat history read <conversation-id>
//	aleutian-chat history rename <conversation-id> "New title"
//	aleutian-chat history delete <conversation-id>
//	aleutian-chat history delete-all
//
// # Environment Variables
//
//   - ALEUTIAN_SERVER: gateway base URL (default: http://localhost:12210)
//   - ALEUTIAN_USER: principal id sent with each request
//   - ALEUTIAN_CACHE_DIR: local conversation cache directory
package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagUser   string
)

func main() {
	root := &cobra.Command{
		Use:          "aleutian-chat",
		Short:        "Chat with the AleutianChat gateway from your terminal",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server",
		envOr("ALEUTIAN_SERVER", "http://localhost:12210"),
		"gateway base URL")
	root.PersistentFlags().StringVar(&flagUser, "user",
		envOr("ALEUTIAN_USER", localUser()),
		"principal id sent with each request")

	root.AddCommand(newChatCmd())
	root.AddCommand(newHistoryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds the gateway client from the persistent flags.
func newClient() *Client {
	return NewClient(flagServer, flagUser)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// localUser resolves a stable default principal from the OS account.
func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return fmt.Sprintf("local-%s", u.Username)
	}
	return "local-user"
}
