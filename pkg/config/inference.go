package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDInference is the identifier for the inference section
	SectionIDInference = "inference"

	PreferenceLocal  = "local"
	PreferenceRemote = "remote"

	RemoteProviderOpenAI = "openai"
	RemoteProviderGemini = "gemini"

	// DefaultLocalBaseURL points at a local Ollama server.
	DefaultLocalBaseURL = "http://localhost:11434/v1"
)

// InferenceSection configures the local and remote model backends.
type InferenceSection struct {
	Preference         string
	LocalBaseURL       string
	LocalModel         string
	RemoteProvider     string
	RemoteModel        string
	RemoteBaseURL      string
	RemoteAPIKey       string
	SummarizationModel string // optional; empty uses RemoteModel
	LocalNativeSchema  bool
	mu                 sync.RWMutex
}

// NewInferenceSection creates the section with defaults.
func NewInferenceSection() *InferenceSection {
	s := &InferenceSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *InferenceSection) ID() string {
	return SectionIDInference
}

// Title returns the section title.
func (s *InferenceSection) Title() string {
	return "Inference"
}

// Description returns the section description.
func (s *InferenceSection) Description() string {
	return "Choose between the local model server and the remote provider. The local backend is used first when preferred and reachable."
}

// Data returns the current configuration data.
func (s *InferenceSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"preference":          s.Preference,
		"local_base_url":      s.LocalBaseURL,
		"local_model":         s.LocalModel,
		"local_native_schema": s.LocalNativeSchema,
		"remote_provider":     s.RemoteProvider,
		"remote_model":        s.RemoteModel,
		"remote_base_url":     s.RemoteBaseURL,
		"remote_api_key":      s.RemoteAPIKey,
		"summarization_model": s.SummarizationModel,
	}
}

// SetData updates the configuration from the provided data.
func (s *InferenceSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := asString(data["preference"]); ok {
		s.Preference = v
	}
	if v, ok := asString(data["local_base_url"]); ok {
		s.LocalBaseURL = v
	}
	if v, ok := asString(data["local_model"]); ok {
		s.LocalModel = v
	}
	if v, ok := asBool(data["local_native_schema"]); ok {
		s.LocalNativeSchema = v
	}
	if v, ok := asString(data["remote_provider"]); ok {
		s.RemoteProvider = v
	}
	if v, ok := asString(data["remote_model"]); ok {
		s.RemoteModel = v
	}
	if v, ok := asString(data["remote_base_url"]); ok {
		s.RemoteBaseURL = v
	}
	if v, ok := asString(data["remote_api_key"]); ok {
		s.RemoteAPIKey = v
	}
	if v, ok := asString(data["summarization_model"]); ok {
		s.SummarizationModel = v
	}
	return nil
}

// Validate validates the current configuration.
func (s *InferenceSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Preference != PreferenceLocal && s.Preference != PreferenceRemote {
		return fmt.Errorf("preference must be %q or %q, got %q", PreferenceLocal, PreferenceRemote, s.Preference)
	}
	if s.RemoteProvider != RemoteProviderOpenAI && s.RemoteProvider != RemoteProviderGemini {
		return fmt.Errorf("remote_provider must be %q or %q, got %q", RemoteProviderOpenAI, RemoteProviderGemini, s.RemoteProvider)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *InferenceSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Preference = PreferenceLocal
	s.LocalBaseURL = DefaultLocalBaseURL
	s.LocalModel = "qwen2.5:7b"
	s.LocalNativeSchema = true
	s.RemoteProvider = RemoteProviderOpenAI
	s.RemoteModel = "gpt-4o"
	s.RemoteBaseURL = ""
	s.RemoteAPIKey = ""
	s.SummarizationModel = ""
}

// GetPreference returns the preferred backend.
func (s *InferenceSection) GetPreference() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Preference
}

// SetPreference sets the preferred backend.
func (s *InferenceSection) SetPreference(p string) error {
	if p != PreferenceLocal && p != PreferenceRemote {
		return fmt.Errorf("unknown inference preference %q", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Preference = p
	return nil
}

// Snapshot returns a copy of the values for read-only use.
func (s *InferenceSection) Snapshot() InferenceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return InferenceSettings{
		Preference:         s.Preference,
		LocalBaseURL:       s.LocalBaseURL,
		LocalModel:         s.LocalModel,
		LocalNativeSchema:  s.LocalNativeSchema,
		RemoteProvider:     s.RemoteProvider,
		RemoteModel:        s.RemoteModel,
		RemoteBaseURL:      s.RemoteBaseURL,
		RemoteAPIKey:       s.RemoteAPIKey,
		SummarizationModel: s.SummarizationModel,
	}
}

// InferenceSettings is an immutable copy of InferenceSection.
type InferenceSettings struct {
	Preference         string
	LocalBaseURL       string
	LocalModel         string
	RemoteProvider     string
	RemoteModel        string
	RemoteBaseURL      string
	RemoteAPIKey       string
	SummarizationModel string
	LocalNativeSchema  bool
}
