package model

import (
	"os"

	"github.com/forgeworks/forge/core"
)

// ProviderKind names a provider family discovered from the environment.
type ProviderKind string

const (
	KindForge      ProviderKind = "forge"
	KindOpenRouter ProviderKind = "openrouter"
	KindOpenAI     ProviderKind = "openai"
	KindAnthropic  ProviderKind = "anthropic"
)

// Credentials is the outcome of environment discovery: which provider family
// to use, the API key, and the endpoint when it differs from the SDK default.
type Credentials struct {
	Kind    ProviderKind
	APIKey  string
	BaseURL string
}

const (
	forgeBaseURL      = "https://antinomy.ai/api/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// envLookup abstracts os.Getenv for tests.
type envLookup func(string) string

// Discover inspects the environment and picks the provider credentials to
// use, in fixed priority order: FORGE_KEY, then OPENROUTER_API_KEY, then
// OPENAI_API_KEY, then ANTHROPIC_API_KEY. OPENAI_URL, when set, overrides
// the endpoint of any OpenAI-compatible provider.
func Discover() (Credentials, error) {
	return discover(os.Getenv)
}

func discover(getenv envLookup) (Credentials, error) {
	openaiURL := getenv("OPENAI_URL")

	if key := getenv("FORGE_KEY"); key != "" {
		url := forgeBaseURL
		if openaiURL != "" {
			url = openaiURL
		}
		return Credentials{Kind: KindForge, APIKey: key, BaseURL: url}, nil
	}
	if key := getenv("OPENROUTER_API_KEY"); key != "" {
		url := openRouterBaseURL
		if openaiURL != "" {
			url = openaiURL
		}
		return Credentials{Kind: KindOpenRouter, APIKey: key, BaseURL: url}, nil
	}
	if key := getenv("OPENAI_API_KEY"); key != "" {
		return Credentials{Kind: KindOpenAI, APIKey: key, BaseURL: openaiURL}, nil
	}
	if key := getenv("ANTHROPIC_API_KEY"); key != "" {
		return Credentials{Kind: KindAnthropic, APIKey: key}, nil
	}
	return Credentials{}, &core.ConfigError{
		Source: "environment",
		Field:  "api key",
		Reason: "no provider key found; set FORGE_KEY, OPENROUTER_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY",
	}
}
