// Package content renders nurture step templates. Templates use a fixed
// token set ({{firstName}}, {{lastName}}, {{practiceName}},
// {{practicePhone}}, {{bookingLink}}) substituted verbatim; a token left
// unresolved in output is a catalog defect, so rendering checks for
// leftovers and fails loudly instead of sending broken copy.
package content

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"growthdesk_backend/internal/nurture/catalog"

	"github.com/osteele/liquid"
)

// PracticeTokens is the practice-side half of the token set.
type PracticeTokens struct {
	PracticeName  string
	PracticePhone string
	BookingLink   string
}

// Bindings is the full token set for one render.
type Bindings struct {
	FirstName string
	LastName  string
	Practice  PracticeTokens
}

// Rendered is a fully substituted step ready to hand to a delivery
// adapter. Subject is empty for SMS steps.
type Rendered struct {
	Channel catalog.Channel
	Subject string
	Body    string
}

var leftoverToken = regexp.MustCompile(`\{\{\s*[a-zA-Z][a-zA-Z0-9_]*\s*\}\}`)

// Renderer renders step templates through a shared liquid engine.
// Parsed templates are cached by source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// RenderStep substitutes the bindings into a catalog step.
func (r *Renderer) RenderStep(step catalog.Step, b Bindings) (Rendered, error) {
	vars := map[string]any{
		"firstName":     fallback(b.FirstName, "there"),
		"lastName":      b.LastName,
		"practiceName":  b.Practice.PracticeName,
		"practicePhone": b.Practice.PracticePhone,
		"bookingLink":   b.Practice.BookingLink,
	}

	body, err := r.render(step.Body, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("render step %d body: %w", step.Number, err)
	}

	var subject string
	if step.Channel == catalog.ChannelEmail {
		subject, err = r.render(step.Subject, vars)
		if err != nil {
			return Rendered{}, fmt.Errorf("render step %d subject: %w", step.Number, err)
		}
	}

	return Rendered{Channel: step.Channel, Subject: subject, Body: body}, nil
}

func (r *Renderer) render(source string, vars map[string]any) (string, error) {
	tmpl, err := r.parse(source)
	if err != nil {
		return "", err
	}

	out, err := tmpl.RenderString(vars)
	if err != nil {
		return "", err
	}

	if match := leftoverToken.FindString(out); match != "" {
		return "", fmt.Errorf("unresolved token %s in rendered output", match)
	}
	return strings.TrimSpace(out), nil
}

func (r *Renderer) parse(source string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	r.cache.Store(source, tmpl)
	return tmpl, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
