package mailstore

import (
	"bytes"
	"time"

	"github.com/emersion/go-message/mail"
)

// buildMessage renders a single-part RFC 2822 text message carrying body
// (already base64-encoded envelope ciphertext) as its content, mirroring
// what email.mime.text.MIMEText produces for a subject and a plaintext
// body.
func buildMessage(subject, body string, date time.Time) (string, error) {
	var header mail.Header
	header.SetSubject(subject)
	header.SetDate(date)
	header.Set("Content-Transfer-Encoding", "7bit")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func newLiteral(raw string) *bytes.Buffer {
	return bytes.NewBufferString(raw)
}
