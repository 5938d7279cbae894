package publisher

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailPublisher sends the digest as an HTML email via SMTP, with the raw
// markdown as the plain-text alternative.
type EmailPublisher struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     sendMailFunc
}

func NewEmailPublisher(host string, port int, username, password, from string, to []string) *EmailPublisher {
	return &EmailPublisher{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (p *EmailPublisher) Publish(ctx context.Context, digest *summarizer.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := p.buildMessage(digest)
	if err != nil {
		return fmt.Errorf("email: failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	if err := p.send(addr, auth, p.from, p.to, msg); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}

	return nil
}

func emailSubject(digest *summarizer.Digest) string {
	return fmt.Sprintf("%s - %s", digestTitle(digest), digest.Date.Format("2006-01-02"))
}

func (p *EmailPublisher) buildMessage(digest *summarizer.Digest) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=\"UTF-8\"", digest.Markdown},
		{"text/html; charset=\"UTF-8\"", buildHTMLBody(digest)},
	}
	for _, part := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		// Rendered paragraphs are single lines; quoted-printable keeps every
		// line under the SMTP limit.
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", p.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(p.to, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", emailSubject(digest)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
