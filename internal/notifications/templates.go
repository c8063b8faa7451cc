package notifications

import (
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yml
var templateCatalog []byte

type rawTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type mailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// TemplateCatalog renders subjects and HTML bodies for workflow events.
type TemplateCatalog struct {
	templates map[string]mailTemplate
}

// LoadTemplates parses the embedded catalog. Fails fast on a malformed
// template so a broken catalog never reaches runtime.
func LoadTemplates() (*TemplateCatalog, error) {
	var raw map[string]rawTemplate
	if err := yaml.Unmarshal(templateCatalog, &raw); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	catalog := &TemplateCatalog{templates: make(map[string]mailTemplate, len(raw))}
	for name, entry := range raw {
		subject, err := texttemplate.New(name + ".subject").Parse(entry.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject template %q: %w", name, err)
		}
		body, err := htmltemplate.New(name + ".body").Parse(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("parse body template %q: %w", name, err)
		}
		catalog.templates[name] = mailTemplate{subject: subject, body: body}
	}
	return catalog, nil
}

// Render produces the subject and HTML body for the named template.
func (c *TemplateCatalog) Render(name string, data any) (subject, body string, err error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", "", fmt.Errorf("no template for %q", name)
	}

	var sb strings.Builder
	if err := tmpl.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject %q: %w", name, err)
	}
	subject = strings.TrimSpace(sb.String())

	var bb strings.Builder
	if err := tmpl.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body %q: %w", name, err)
	}
	return subject, bb.String(), nil
}
