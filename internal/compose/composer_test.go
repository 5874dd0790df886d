package compose

import (
	"errors"
	"strings"
	"testing"

	"github.com/foxzi/outreach/internal/models"
)

func testRecipient() *models.Recipient {
	return &models.Recipient{
		Name:     "Alice Smith",
		Email:    "alice@example.com",
		Company:  "Acme",
		JobTitle: "Staff Engineer",
	}
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"name": "Alice", "company": "Acme"}

	tests := []struct {
		in   string
		want string
	}{
		{"Hi {{name}}", "Hi Alice"},
		{"Hi {{ name }}", "Hi Alice"},
		{"{{name}} at {{company}}", "Alice at Acme"},
		{"no placeholders", "no placeholders"},
		{"unknown {{widget}}", "unknown {{widget}}"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Substitute(tt.in, vars); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVariables(t *testing.T) {
	vars := Variables(testRecipient(), Sender{Name: "Bob", Email: "bob@example.com"})

	want := map[string]string{
		"name":          "Alice Smith",
		"recruiterName": "Alice Smith",
		"email":         "alice@example.com",
		"company":       "Acme",
		"position":      "Staff Engineer",
		"myName":        "Bob",
		"myEmail":       "bob@example.com",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("Variables()[%q] = %q, want %q", k, vars[k], v)
		}
	}
}

func TestComposeRejectsUnusableTemplate(t *testing.T) {
	sender := Sender{Name: "Bob", Email: "bob@example.com"}

	_, err := Compose(nil, testRecipient(), sender, nil, "")
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("Compose(nil template) error = %v, want TemplateError", err)
	}

	_, err = Compose(&models.Template{Subject: "hi", Body: "   "}, testRecipient(), sender, nil, "")
	if !errors.As(err, &te) {
		t.Fatalf("Compose(empty body) error = %v, want TemplateError", err)
	}
}

func TestComposeSubstitutesAndRenders(t *testing.T) {
	tmpl := &models.Template{
		Subject: "Hello {{name}}",
		Body:    "Hi {{name}},\n\nI saw the **{{position}}** role at {{company}}.\n\n{{myName}}",
	}
	sender := Sender{Name: "Bob", Email: "bob@example.com"}

	msg, err := Compose(tmpl, testRecipient(), sender, nil, "")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if msg.Subject != "Hello Alice Smith" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, "<strong>Staff Engineer</strong>") {
		t.Errorf("HTMLBody missing bold position: %q", msg.HTMLBody)
	}
	if !strings.Contains(msg.TextBody, "Staff Engineer") || strings.Contains(msg.TextBody, "**") {
		t.Errorf("TextBody not plain: %q", msg.TextBody)
	}
	if msg.Attachment != nil {
		t.Errorf("Attachment = %v, want nil", msg.Attachment)
	}
}

func TestComposeEmbedsTrackingPixel(t *testing.T) {
	tmpl := &models.Template{Subject: "s", Body: "hello"}
	sender := Sender{Email: "bob@example.com"}

	msg, err := Compose(tmpl, testRecipient(), sender, nil, "https://example.com/t/o/abc.gif")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(msg.HTMLBody, `src="https://example.com/t/o/abc.gif"`) {
		t.Errorf("HTMLBody missing pixel: %q", msg.HTMLBody)
	}
	if strings.Contains(msg.TextBody, "abc.gif") {
		t.Errorf("TextBody should not carry the pixel: %q", msg.TextBody)
	}
}

func TestComposeResolvesAttachment(t *testing.T) {
	tmpl := &models.Template{Subject: "s", Body: "hello"}
	resume := &models.Resume{FileName: "cv.pdf", FilePath: "/data/cv.pdf"}

	msg, err := Compose(tmpl, testRecipient(), Sender{Email: "bob@example.com"}, resume, "")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if msg.Attachment == nil || msg.Attachment.FileName != "cv.pdf" || msg.Attachment.FilePath != "/data/cv.pdf" {
		t.Errorf("Attachment = %+v", msg.Attachment)
	}
}

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"# Title", "<h1>Title</h1>"},
		{"**bold**", "<strong>bold</strong>"},
		{"*em*", "<em>em</em>"},
		{"[link](https://example.com)", `<a href="https://example.com">link</a>`},
		{"- one\n- two", "<ul><li>one</li><br><li>two</li></ul>"},
		{"a\nb", "a<br>b"},
	}

	for _, tt := range tests {
		if got := markdownToHTML(tt.in); got != tt.want {
			t.Errorf("markdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
