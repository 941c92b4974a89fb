// Package models defines data structures for voxchat conversations and analytics.
package models

import (
	"fmt"
	"slices"
	"strings"
)

// ModelName identifies which speech backend handles an utterance.
type ModelName string

// The fixed set of speech models.
const (
	ModelCSM      ModelName = "csm-1b"
	ModelMoshi    ModelName = "moshi"
	ModelUltravox ModelName = "ultravox"
)

// DefaultLanguage is used when a backend does not support the requested language.
const DefaultLanguage = "en"

var displayNames = map[ModelName]string{
	ModelCSM:      "CSM 1B",
	ModelMoshi:    "Moshi",
	ModelUltravox: "Ultravox",
}

// ModelNames returns all known model names in a stable order.
func ModelNames() []ModelName {
	names := make([]ModelName, 0, len(displayNames))
	for name := range displayNames {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseModelName validates s against the known models.
// Matching is case-insensitive; surrounding whitespace is ignored.
func ParseModelName(s string) (ModelName, error) {
	name := ModelName(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := displayNames[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
	}
	return name, nil
}

// DisplayName returns the human-readable model name.
func (m ModelName) DisplayName() string {
	if d, ok := displayNames[m]; ok {
		return d
	}
	return string(m)
}

// DefaultTitle is the title given to a conversation created for this model.
func (m ModelName) DefaultTitle() string {
	return "Chat with " + m.DisplayName()
}
