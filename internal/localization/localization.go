package localization

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

const DefaultLanguage = "en"

// Message is a rendered notification text.
type Message struct {
	Title string
	Body  string
}

type Service struct {
	templates map[string]map[string]interface{}
}

func NewService() (*Service, error) {
	s := &Service{
		templates: make(map[string]map[string]interface{}),
	}

	languages := []string{DefaultLanguage}
	for _, lang := range languages {
		data, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.yaml", lang))
		if err != nil {
			return nil, fmt.Errorf("read %s templates: %w", lang, err)
		}

		var templates map[string]interface{}
		if err := yaml.Unmarshal(data, &templates); err != nil {
			return nil, fmt.Errorf("parse %s templates: %w", lang, err)
		}

		s.templates[lang] = templates
	}

	return s, nil
}

// Get retrieves a template by key and fills {{placeholders}} from params.
// Key format: "section.subsection.key". Unknown keys are returned as is.
func (s *Service) Get(lang, key string, params map[string]interface{}) string {
	templates, ok := s.templates[lang]
	if !ok {
		templates = s.templates[DefaultLanguage]
	}

	var current interface{} = templates
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return key
		}
		current = m[part]
	}

	text, ok := current.(string)
	if !ok {
		return key
	}

	return replacePlaceholders(text, params)
}

// Message renders the "<key>.title" and "<key>.message" pair.
func (s *Service) Message(key string, params map[string]interface{}) Message {
	return Message{
		Title: s.Get(DefaultLanguage, key+".title", params),
		Body:  s.Get(DefaultLanguage, key+".message", params),
	}
}

func replacePlaceholders(text string, params map[string]interface{}) string {
	for key, value := range params {
		text = strings.ReplaceAll(text, "{{"+key+"}}", fmt.Sprint(value))
	}
	return text
}
