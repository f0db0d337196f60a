// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// EmailContent is the data passed to every email template.
type EmailContent struct {
	RecipientName string
	Title         string
	Message       string
	ActionURL     string
	ActionLabel   string
	ActorName     string
	ThumbnailURL  string
	Year          int

	// Password reset only.
	ResetURL string
}

// RenderedEmail is a rendered subject and body pair.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// emailTemplate names the subject, heading and call to action for a category.
type emailTemplate struct {
	subject     string
	actionLabel string
	body        string
}

// Subjects are text/template strings over EmailContent.
var categoryTemplates = map[Category]emailTemplate{
	CategoryLikes: {
		subject:     "{{.ActorName}} liked your post",
		actionLabel: "View post",
		body:        likesHTMLTemplate,
	},
	CategoryComments: {
		subject:     "New comment: {{.Title}}",
		actionLabel: "Read the comment",
		body:        commentsHTMLTemplate,
	},
	CategoryFollows: {
		subject:     "{{.Title}}",
		actionLabel: "View profile",
		body:        followsHTMLTemplate,
	},
	CategoryMentions: {
		subject:     "{{.ActorName}} mentioned you",
		actionLabel: "See the mention",
		body:        mentionsHTMLTemplate,
	},
	CategoryMessages: {
		subject:     "New message from {{.ActorName}}",
		actionLabel: "Open chat",
		body:        messagesHTMLTemplate,
	},
}

// TemplateEngine renders notification and password reset emails.
type TemplateEngine struct {
	layout   *htmltemplate.Template
	text     *texttemplate.Template
	bodies   map[Category]*htmltemplate.Template
	subjects map[Category]*texttemplate.Template
	reset    *htmltemplate.Template
}

// NewTemplateEngine parses the built-in templates.
func NewTemplateEngine() (*TemplateEngine, error) {
	funcs := htmltemplate.FuncMap{
		"truncate": truncate,
		"default": func(def, val string) string {
			if strings.TrimSpace(val) == "" {
				return def
			}
			return val
		},
	}

	e := &TemplateEngine{
		bodies:   make(map[Category]*htmltemplate.Template, len(categoryTemplates)),
		subjects: make(map[Category]*texttemplate.Template, len(categoryTemplates)),
	}

	var err error
	if e.layout, err = htmltemplate.New("layout").Funcs(funcs).Parse(layoutHTMLTemplate); err != nil {
		return nil, fmt.Errorf("parse layout template: %w", err)
	}
	if e.text, err = texttemplate.New("text").Funcs(texttemplate.FuncMap(funcs)).Parse(notificationTextTemplate); err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	if e.reset, err = htmltemplate.New("password_reset").Funcs(funcs).Parse(passwordResetHTMLTemplate); err != nil {
		return nil, fmt.Errorf("parse password reset template: %w", err)
	}

	for cat, tmpl := range categoryTemplates {
		body, err := htmltemplate.New(string(cat)).Funcs(funcs).Parse(tmpl.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", cat, err)
		}
		subject, err := texttemplate.New(string(cat) + "_subject").Funcs(texttemplate.FuncMap(funcs)).Parse(tmpl.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", cat, err)
		}
		e.bodies[cat] = body
		e.subjects[cat] = subject
	}
	return e, nil
}

// RenderNotification renders the email for a notification of type t.
// System and unknown types use the generic body.
func (e *TemplateEngine) RenderNotification(t Type, data EmailContent) (*RenderedEmail, error) {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}

	cat, ok := CategoryOf(t)
	subject := data.Title
	body := genericHTMLTemplateParsed
	if ok {
		data.ActionLabel = categoryTemplates[cat].actionLabel
		var sb strings.Builder
		if err := e.subjects[cat].Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("render %s subject: %w", cat, err)
		}
		subject = sb.String()
		body = e.bodies[cat]
	}

	inner, err := executeHTML(body, data)
	if err != nil {
		return nil, fmt.Errorf("render %s body: %w", t, err)
	}
	html, err := e.wrap(subject, inner, data.Year)
	if err != nil {
		return nil, err
	}

	var text bytes.Buffer
	if err := e.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	return &RenderedEmail{Subject: subject, HTML: html, Text: text.String()}, nil
}

// RenderPasswordReset renders the password reset email.
func (e *TemplateEngine) RenderPasswordReset(username, resetURL string) (*RenderedEmail, error) {
	data := EmailContent{RecipientName: username, ResetURL: resetURL, Year: time.Now().Year()}
	inner, err := executeHTML(e.reset, data)
	if err != nil {
		return nil, fmt.Errorf("render password reset: %w", err)
	}
	const subject = "Reset your password"
	html, err := e.wrap(subject, inner, data.Year)
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("Hi %s,\n\nSomeone asked to reset the password for your account.\n"+
		"Open this link to choose a new one:\n\n%s\n\n"+
		"If you did not ask for this, you can ignore this email.\n", username, resetURL)
	return &RenderedEmail{Subject: subject, HTML: html, Text: text}, nil
}

func (e *TemplateEngine) wrap(subject string, inner htmltemplate.HTML, year int) (string, error) {
	var buf bytes.Buffer
	err := e.layout.Execute(&buf, struct {
		Subject string
		Content htmltemplate.HTML
		Year    int
	}{subject, inner, year})
	if err != nil {
		return "", fmt.Errorf("render layout: %w", err)
	}
	return buf.String(), nil
}

func executeHTML(t *htmltemplate.Template, data EmailContent) (htmltemplate.HTML, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	// Output of html/template is already escaped.
	return htmltemplate.HTML(buf.String()), nil //nolint:gosec
}

func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var genericHTMLTemplateParsed = htmltemplate.Must(htmltemplate.New("generic").Parse(genericHTMLTemplate))

const layoutHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Subject}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f4f5f7; margin: 0; padding: 24px; color: #1f2933; }
.card { max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px; }
.button { display: inline-block; background: #3b5bdb; color: #ffffff; padding: 10px 18px; border-radius: 6px; text-decoration: none; }
.muted { color: #7b8794; font-size: 12px; text-align: center; margin-top: 24px; }
.thumb { max-width: 100%; border-radius: 6px; margin: 12px 0; }
</style>
</head>
<body>
<div class="card">
{{.Content}}
</div>
<p class="muted">&copy; {{.Year}} Parley. You can change which emails you receive in your notification settings.</p>
</body>
</html>`

const likesHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p>{{.Message}}</p>
{{if .ThumbnailURL}}<img class="thumb" src="{{.ThumbnailURL}}" alt="">{{end}}
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}`

const commentsHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p><strong>{{default "Someone" .ActorName}}</strong> wrote:</p>
<blockquote>{{truncate 280 .Message}}</blockquote>
{{if .ThumbnailURL}}<img class="thumb" src="{{.ThumbnailURL}}" alt="">{{end}}
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}`

const followsHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p>{{.Message}}</p>
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}`

const mentionsHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p><strong>{{default "Someone" .ActorName}}</strong> mentioned you:</p>
<blockquote>{{truncate 280 .Message}}</blockquote>
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}`

const messagesHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p>You have a new message from <strong>{{default "someone" .ActorName}}</strong>:</p>
<blockquote>{{truncate 140 .Message}}</blockquote>
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}`

const genericHTMLTemplate = `<h2>{{.Title}}</h2>
<p>Hi {{.RecipientName}},</p>
<p>{{.Message}}</p>
{{if .ActionURL}}<p><a class="button" href="{{.ActionURL}}">Open Parley</a></p>{{end}}`

const passwordResetHTMLTemplate = `<h2>Reset your password</h2>
<p>Hi {{.RecipientName}},</p>
<p>Someone asked to reset the password for your account. Use the button below to choose a new one.</p>
<p><a class="button" href="{{.ResetURL}}">Reset password</a></p>
<p>If you did not ask for this, you can ignore this email. Your password will not change.</p>`

const notificationTextTemplate = `Hi {{.RecipientName}},

{{.Title}}

{{.Message}}
{{if .ActionURL}}
{{default "Open" .ActionLabel}}: {{.ActionURL}}
{{end}}
You can change which emails you receive in your notification settings.
`
