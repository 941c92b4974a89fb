package speech

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/voxchat/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Lines holds the canned transcripts and replies for one language.
type Lines struct {
	Transcripts []string `yaml:"transcripts"`
	Replies     []string `yaml:"replies"`
}

// Voice describes a model's canned output.
type Voice struct {
	ToneHz    float64          `yaml:"tone_hz"`
	Seconds   float64          `yaml:"seconds"`
	Languages map[string]Lines `yaml:"languages"`
}

// Duration returns the length of the placeholder audio.
func (v Voice) Duration() time.Duration {
	return time.Duration(v.Seconds * float64(time.Second))
}

// Lookup returns the lines for language, falling back to the default language.
// The second result is the language actually used.
func (v Voice) Lookup(language string) (Lines, string) {
	lang := normalizeLanguage(language)
	if lines, ok := v.Languages[lang]; ok {
		return lines, lang
	}
	return v.Languages[models.DefaultLanguage], models.DefaultLanguage
}

// SupportedLanguages returns the languages with canned lines, sorted.
func (v Voice) SupportedLanguages() []string {
	langs := make([]string, 0, len(v.Languages))
	for l := range v.Languages {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// Catalog maps model names to their voices.
type Catalog struct {
	Models map[models.ModelName]Voice `yaml:"models"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for name, v := range c.Models {
		if _, err := models.ParseModelName(string(name)); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if v.ToneHz <= 0 || v.Seconds <= 0 {
			return nil, fmt.Errorf("catalog: model %s: tone_hz and seconds must be positive", name)
		}
		def, ok := v.Languages[models.DefaultLanguage]
		if !ok || len(def.Transcripts) == 0 || len(def.Replies) == 0 {
			return nil, fmt.Errorf("catalog: model %s: missing %q lines", name, models.DefaultLanguage)
		}
		for lang, lines := range v.Languages {
			if len(lines.Transcripts) == 0 || len(lines.Replies) == 0 {
				return nil, fmt.Errorf("catalog: model %s language %s: empty lines", name, lang)
			}
		}
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Voice returns the voice for name.
func (c *Catalog) Voice(name models.ModelName) (Voice, bool) {
	v, ok := c.Models[name]
	return v, ok
}

// normalizeLanguage reduces "en-US" and "EN" to "en".
func normalizeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
