// Package compose turns a template, a recipient and a sender identity
// into a concrete message. It is pure: no storage or campaign state is
// touched here.
package compose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/foxzi/outreach/internal/models"
)

// TemplateError reports a template unusable for composition.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string {
	return "template error: " + e.Reason
}

// Sender is the identity the message is sent as.
type Sender struct {
	Name  string
	Email string
}

// Attachment is a resolved file to attach.
type Attachment struct {
	FileName string
	FilePath string
}

// Message is the composed output ready for the transport.
type Message struct {
	Subject    string
	TextBody   string
	HTMLBody   string
	Attachment *Attachment
}

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Substitute replaces {{variable}} placeholders with values from vars.
// Recognized but absent variables substitute the empty string; unknown
// placeholders are left untouched.
func Substitute(text string, vars map[string]string) string {
	if text == "" {
		return text
	}
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Variables builds the recognized substitution set for one recipient.
func Variables(r *models.Recipient, sender Sender) map[string]string {
	return map[string]string{
		"name":          r.Name,
		"recruiterName": r.Name,
		"email":         r.Email,
		"company":       r.Company,
		"position":      r.JobTitle,
		"myName":        sender.Name,
		"myEmail":       sender.Email,
	}
}

// Compose renders the subject and body for one recipient and resolves the
// optional resume attachment. trackingURL, when non-empty, is embedded as
// an invisible pixel in the HTML body.
func Compose(tmpl *models.Template, r *models.Recipient, sender Sender, resume *models.Resume, trackingURL string) (*Message, error) {
	if tmpl == nil {
		return nil, &TemplateError{Reason: "template not found"}
	}
	if strings.TrimSpace(tmpl.Body) == "" {
		return nil, &TemplateError{Reason: "template body is empty"}
	}

	vars := Variables(r, sender)
	subject := Substitute(tmpl.Subject, vars)
	body := Substitute(tmpl.Body, vars)

	html := markdownToHTML(body)
	if trackingURL != "" {
		html += fmt.Sprintf(`<img src=%q width="1" height="1" style="display:none" />`, trackingURL)
	}

	msg := &Message{
		Subject:  subject,
		TextBody: toPlainText(body),
		HTMLBody: html,
	}
	if resume != nil {
		msg.Attachment = &Attachment{FileName: resume.FileName, FilePath: resume.FilePath}
	}
	return msg, nil
}

var (
	mdH3     = regexp.MustCompile(`(?m)^### (.*)$`)
	mdH2     = regexp.MustCompile(`(?m)^## (.*)$`)
	mdH1     = regexp.MustCompile(`(?m)^# (.*)$`)
	mdBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic = regexp.MustCompile(`\*(.*?)\*`)
	mdLink   = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	mdBullet = regexp.MustCompile(`(?m)^- (.*)$`)
	mdULWrap = regexp.MustCompile(`(?s)(<li>.*</li>)`)
	mdULJoin = regexp.MustCompile(`</ul>\s*<ul>`)
)

// markdownToHTML converts the small markdown subset templates use into
// email-friendly HTML.
func markdownToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := mdH3.ReplaceAllString(markdown, "<h3>$1</h3>")
	html = mdH2.ReplaceAllString(html, "<h2>$1</h2>")
	html = mdH1.ReplaceAllString(html, "<h1>$1</h1>")
	html = mdBold.ReplaceAllString(html, "<strong>$1</strong>")
	html = mdItalic.ReplaceAllString(html, "<em>$1</em>")
	html = mdLink.ReplaceAllString(html, `<a href="$2">$1</a>`)
	html = mdBullet.ReplaceAllString(html, "<li>$1</li>")
	html = mdULWrap.ReplaceAllString(html, "<ul>$1</ul>")
	html = mdULJoin.ReplaceAllString(html, "")
	html = strings.ReplaceAll(html, "\n", "<br>")
	return html
}

var (
	plainTags    = regexp.MustCompile(`<[^>]*>`)
	plainBreaks  = regexp.MustCompile(`(?i)<br\s*/?>`)
	plainParaEnd = regexp.MustCompile(`(?i)</p>`)
	plainLiOpen  = regexp.MustCompile(`(?i)<li>`)
	plainLiClose = regexp.MustCompile(`(?i)</li>`)
)

// toPlainText strips markup so a text alternative can accompany the HTML
// part for older clients.
func toPlainText(content string) string {
	text := plainBreaks.ReplaceAllString(content, "\n")
	text = plainParaEnd.ReplaceAllString(text, "\n\n")
	text = plainLiOpen.ReplaceAllString(text, "• ")
	text = plainLiClose.ReplaceAllString(text, "\n")
	text = plainTags.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "$1")
	text = mdItalic.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdBullet.ReplaceAllString(text, "• $1")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	).Replace(text)
	return strings.TrimSpace(text)
}
