package config

import "time"

const (
	// Search
	SearchTail      = 8
	SearchLimit     = 20
	TitleMatchBonus = 2.0
	RecencyDivisor  = 1e11

	// Titles
	TitleMaxWords      = 6
	FallbackTitleWords = 7
	TitlePromptLimit   = 2000
	TitleMaxTokens     = 24

	// Placeholder and error strings shown in conversations
	PlaceholderTitle   = "New chat"
	AssistantErrorText = "Error from assistant"

	// Request timeouts
	RequestTimeout   = 90 * time.Second
	TitleTimeout     = 20 * time.Second
	PageFetchTimeout = 10 * time.Second

	// Share link path template
	SharePathTemplate = "%s/share/%s"

	// System instruction prefixed to every model request
	SystemPrompt = "You are a friendly, precise AI chat assistant. Answer clearly and helpfully."
)
