package transport

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
)

func TestSubmissionHost(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"user@gmail.com", "smtp.gmail.com:587"},
		{"user@GMAIL.com", "smtp.gmail.com:587"},
		{"user@googlemail.com", "smtp.gmail.com:587"},
		{"user@outlook.com", "smtp-mail.outlook.com:587"},
		{"user@hotmail.com", "smtp-mail.outlook.com:587"},
		{"user@yahoo.com", "smtp.mail.yahoo.com:587"},
		{"user@corporate.example", "smtp.gmail.com:587"},
		{"not-an-address", "smtp.gmail.com:587"},
	}

	for _, tt := range tests {
		if got := submissionHost(tt.from); got != tt.want {
			t.Errorf("submissionHost(%q) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	temp := categorizeError(&smtp.SMTPError{Code: 451, Message: "try again"}, "send")
	if !temp.Temporary {
		t.Error("4xx should be temporary")
	}

	perm := categorizeError(&smtp.SMTPError{Code: 550, Message: "no such user"}, "send")
	if perm.Temporary {
		t.Error("5xx should be permanent")
	}

	unknown := categorizeError(errors.New("connection reset"), "send")
	if !unknown.Temporary {
		t.Error("unknown errors default to temporary")
	}
	if !strings.Contains(unknown.Message, "send failed") {
		t.Errorf("Message = %q, want stage prefix", unknown.Message)
	}
}

func TestBuildMessageWithoutAttachment(t *testing.T) {
	data, err := buildMessage(&Email{
		From:     "bob@gmail.com",
		FromName: "Bob",
		To:       "alice@example.com",
		Subject:  "Hello",
		TextBody: "plain text",
		HTMLBody: "<p>html</p>",
	})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}

	msg := string(data)
	for _, want := range []string{
		"From: Bob <bob@gmail.com>",
		"To: alice@example.com",
		"Subject: Hello",
		"MIME-Version: 1.0",
		"multipart/alternative",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
		"plain text",
		"<p>html</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(msg, "multipart/mixed") {
		t.Error("no attachment, but message is multipart/mixed")
	}
}

func TestBuildMessageWithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644); err != nil {
		t.Fatalf("failed to write attachment: %v", err)
	}

	data, err := buildMessage(&Email{
		From:       "bob@gmail.com",
		To:         "alice@example.com",
		Subject:    "With CV",
		TextBody:   "text",
		HTMLBody:   "<p>html</p>",
		Attachment: &AttachmentData{FileName: "cv.pdf", FilePath: path},
	})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}

	msg := string(data)
	for _, want := range []string{
		"multipart/mixed",
		"multipart/alternative",
		`attachment; filename="cv.pdf"`,
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestBuildMessageMissingAttachmentFile(t *testing.T) {
	_, err := buildMessage(&Email{
		From:       "bob@gmail.com",
		To:         "alice@example.com",
		TextBody:   "t",
		HTMLBody:   "h",
		Attachment: &AttachmentData{FileName: "gone.pdf", FilePath: "/nonexistent/gone.pdf"},
	})
	if err == nil {
		t.Fatal("buildMessage() with missing file succeeded")
	}
}

func TestIsTemporaryError(t *testing.T) {
	if !IsTemporaryError(&DeliveryError{Temporary: true}) {
		t.Error("temporary DeliveryError reported permanent")
	}
	if IsTemporaryError(&DeliveryError{Temporary: false}) {
		t.Error("permanent DeliveryError reported temporary")
	}
	if !IsTemporaryError(errors.New("anything")) {
		t.Error("unknown errors should default to temporary")
	}
}
