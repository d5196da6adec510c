// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings manages the UI-facing configuration blob.
//
// Frontend settings live in a YAML file so operators can rebrand or
// toggle feedback without redeploying; the Watcher reloads the file on
// change and handlers read the current snapshot per request.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FrontendSettings is the configuration blob served to the web UI.
type FrontendSettings struct {
	// AuthEnabled tells the UI whether a fronting identity proxy is
	// expected to be present.
	AuthEnabled bool `yaml:"auth_enabled" json:"auth_enabled"`

	// FeedbackEnabled shows or hides the per-message feedback controls
	// and gates the feedback property at the store level.
	FeedbackEnabled bool `yaml:"feedback_enabled" json:"feedback_enabled"`

	UI UISettings `yaml:"ui" json:"ui"`

	// SanitizeAnswer strips markdown image tags from answers before
	// the UI renders them.
	SanitizeAnswer bool `yaml:"sanitize_answer" json:"sanitize_answer"`
}

// UISettings carries branding strings.
type UISettings struct {
	Title           string `yaml:"title" json:"title"`
	LogoURL         string `yaml:"logo" json:"logo,omitempty"`
	ChatTitle       string `yaml:"chat_title" json:"chat_title"`
	ChatDescription string `yaml:"chat_description" json:"chat_description"`
	ShowShareButton bool   `yaml:"show_share_button" json:"show_share_button"`
}

// Defaults returns the settings used when no file is configured.
func Defaults() FrontendSettings {
	return FrontendSettings{
		AuthEnabled:     false,
		FeedbackEnabled: true,
		UI: UISettings{
			Title:           "Aleutian Chat",
			ChatTitle:       "Start chatting",
			ChatDescription: "This chatbot is configured to answer your questions",
			ShowShareButton: true,
		},
		SanitizeAnswer: true,
	}
}

// Load reads frontend settings from a YAML file, layered over the
// defaults so a partial file stays valid.
func Load(path string) (FrontendSettings, error) {
	out := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Defaults(), fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return out, nil
}
