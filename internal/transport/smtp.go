package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// submissionHosts maps well-known consumer provider domains to their
// authenticated submission endpoints.
var submissionHosts = map[string]string{
	"gmail.com":      "smtp.gmail.com:587",
	"googlemail.com": "smtp.gmail.com:587",
	"outlook.com":    "smtp-mail.outlook.com:587",
	"hotmail.com":    "smtp-mail.outlook.com:587",
	"live.com":       "smtp-mail.outlook.com:587",
	"yahoo.com":      "smtp.mail.yahoo.com:587",
}

const defaultSubmissionHost = "smtp.gmail.com:587"

// SMTPDeliverer submits messages through the sender's own provider using
// STARTTLS and PLAIN auth with the owner's app password.
type SMTPDeliverer struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewSMTPDeliverer(timeout time.Duration, logger *slog.Logger) *SMTPDeliverer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SMTPDeliverer{timeout: timeout, logger: logger}
}

// Deliver sends one email. Errors are categorized as temporary or
// permanent so callers can decide what is worth retrying.
func (d *SMTPDeliverer) Deliver(ctx context.Context, email *Email) error {
	host := submissionHost(email.From)

	data, err := buildMessage(email)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: fmt.Sprintf("message build failed: %v", err)}
	}

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	client, err := smtp.DialStartTLS(host, &tls.Config{
		ServerName: strings.Split(host, ":")[0],
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("connection failed to %s: %v", host, err)}
	}
	defer client.Close()

	client.CommandTimeout = time.Until(deadline)
	client.SubmissionTimeout = time.Until(deadline)

	if err := client.Auth(sasl.NewPlainClient("", email.From, email.Password)); err != nil {
		return categorizeError(err, "AUTH")
	}

	if err := client.SendMail(email.From, []string{email.To}, bytes.NewReader(data)); err != nil {
		return categorizeError(err, "send")
	}

	client.Quit()

	if d.logger != nil {
		d.logger.Debug("message submitted", "host", host, "to", email.To)
	}
	return nil
}

// submissionHost picks the provider endpoint for a sender address.
func submissionHost(from string) string {
	at := strings.LastIndex(from, "@")
	if at < 0 {
		return defaultSubmissionHost
	}
	domain := strings.ToLower(from[at+1:])
	if host, ok := submissionHosts[domain]; ok {
		return host
	}
	return defaultSubmissionHost
}

// categorizeError determines if an SMTP error is temporary or permanent.
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return &DeliveryError{Temporary: se.Code >= 400 && se.Code < 500, Message: msg}
	}

	// Assume temporary by default
	return &DeliveryError{Temporary: true, Message: msg}
}

// buildMessage assembles an RFC 5322 message: multipart/alternative for
// the text and HTML parts, wrapped in multipart/mixed when an attachment
// is present.
func buildMessage(email *Email) ([]byte, error) {
	var buf bytes.Buffer

	from := email.From
	if email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", email.FromName, email.From)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	mixed := multipart.NewWriter(&buf)
	if email.Attachment != nil {
		fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

		altHeader := textproto.MIMEHeader{}
		var alt bytes.Buffer
		altWriter := multipart.NewWriter(&alt)
		altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary()))
		part, err := mixed.CreatePart(altHeader)
		if err != nil {
			return nil, err
		}
		if err := writeAlternative(altWriter, email); err != nil {
			return nil, err
		}
		if _, err := part.Write(alt.Bytes()); err != nil {
			return nil, err
		}

		if err := writeAttachment(mixed, email.Attachment); err != nil {
			return nil, err
		}
		if err := mixed.Close(); err != nil {
			return nil, err
		}
	} else {
		alt := multipart.NewWriter(&buf)
		fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", alt.Boundary())
		if err := writeAlternative(alt, email); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeAlternative(w *multipart.Writer, email *Email) error {
	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(part, email.TextBody); err != nil {
		return err
	}

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	part, err = w.CreatePart(htmlHeader)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(part, email.HTMLBody); err != nil {
		return err
	}

	return w.Close()
}

func writeAttachment(w *multipart.Writer, att *AttachmentData) error {
	content, err := os.ReadFile(att.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(att.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	// 76-char lines per RFC 2045
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := io.WriteString(part, encoded[:n]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
