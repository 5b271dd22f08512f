package config

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/llm/gemini"
	"github.com/entrhq/pilot/pkg/llm/openai"
)

// Overrides carries values given on the command line. Empty fields fall
// through to the environment, then to the config file, then to defaults.
type Overrides struct {
	Preference     string
	LocalBaseURL   string
	LocalModel     string
	RemoteProvider string
	RemoteModel    string
	RemoteBaseURL  string
	RemoteAPIKey   string
}

// Resolve merges CLI overrides and environment variables over settings.
// Precedence: CLI flags > environment variables > config file > defaults.
func Resolve(settings InferenceSettings, o Overrides) InferenceSettings {
	pick := func(cli, env, file string) string {
		if cli != "" {
			return cli
		}
		if env != "" {
			return env
		}
		return file
	}

	out := settings
	out.Preference = pick(o.Preference, os.Getenv("PILOT_INFERENCE"), settings.Preference)
	out.LocalBaseURL = pick(o.LocalBaseURL, os.Getenv("PILOT_LOCAL_BASE_URL"), settings.LocalBaseURL)
	out.LocalModel = pick(o.LocalModel, os.Getenv("PILOT_LOCAL_MODEL"), settings.LocalModel)
	out.RemoteProvider = pick(o.RemoteProvider, os.Getenv("PILOT_REMOTE_PROVIDER"), settings.RemoteProvider)
	out.RemoteModel = pick(o.RemoteModel, os.Getenv("PILOT_REMOTE_MODEL"), settings.RemoteModel)

	switch out.RemoteProvider {
	case RemoteProviderGemini:
		out.RemoteAPIKey = pick(o.RemoteAPIKey, os.Getenv("GEMINI_API_KEY"), settings.RemoteAPIKey)
	default:
		out.RemoteAPIKey = pick(o.RemoteAPIKey, os.Getenv("OPENAI_API_KEY"), settings.RemoteAPIKey)
		out.RemoteBaseURL = pick(o.RemoteBaseURL, os.Getenv("OPENAI_BASE_URL"), settings.RemoteBaseURL)
	}
	return out
}

// BuildLocalProvider creates the OpenAI-compatible client for the local
// model server. No API key is needed.
func BuildLocalProvider(s InferenceSettings) (*openai.Provider, error) {
	baseURL := s.LocalBaseURL
	if baseURL == "" {
		baseURL = DefaultLocalBaseURL
	}
	p, err := openai.NewProvider("local",
		openai.WithBaseURL(baseURL),
		openai.WithModel(s.LocalModel),
		openai.WithNativeSchema(s.LocalNativeSchema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local provider: %w", err)
	}
	return p, nil
}

// BuildRemoteProvider creates the hosted provider selected by s.RemoteProvider.
func BuildRemoteProvider(ctx context.Context, s InferenceSettings) (llm.Provider, error) {
	switch s.RemoteProvider {
	case RemoteProviderGemini:
		var opts []gemini.ProviderOption
		if s.RemoteModel != "" {
			opts = append(opts, gemini.WithModel(s.RemoteModel))
		}
		p, err := gemini.NewProvider(ctx, s.RemoteAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote provider: %w", err)
		}
		return p, nil
	case RemoteProviderOpenAI, "":
		opts := []openai.ProviderOption{openai.WithNativeSchema(true)}
		if s.RemoteModel != "" {
			opts = append(opts, openai.WithModel(s.RemoteModel))
		}
		if s.RemoteBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.RemoteBaseURL))
		}
		if s.RemoteAPIKey == "" && s.RemoteBaseURL == "" {
			return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY, use --api-key, or configure remote_api_key in the inference section")
		}
		p, err := openai.NewProvider(s.RemoteAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown remote provider %q", s.RemoteProvider)
	}
}
