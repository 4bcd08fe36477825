// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"github.com/curioswitch/go-curiostack/config"
)

type Agent struct {
	// Provider is the language model provider, "openai" or "gemini".
	Provider string `koanf:"provider"`

	// Model is the model name passed to the provider.
	Model string `koanf:"model"`
}

type Config struct {
	config.Common

	// Agent is the configuration for the language model behind the agent.
	Agent Agent `koanf:"agent"`
}
