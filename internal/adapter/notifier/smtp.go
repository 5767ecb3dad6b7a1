package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SMTPNotifier sends an HTML confirmation email over STARTTLS.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(ctx context.Context, from string, to []string, msg []byte) error
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<h1>Confirmation de votre mission</h1>
<p>Bonjour,</p>
<p>Nous vous confirmons la prise en compte de votre mission :</p>
<ul>
<li><strong>Service :</strong> {{.Service}}</li>
<li><strong>Description :</strong> {{.Description}}</li>
<li><strong>Prix :</strong> {{printf "%.2f" .Price}} €</li>
<li><strong>Statut :</strong> {{.Status}}</li>
</ul>
<p>Référence de la mission : {{.RecordID}}</p>
<p>Nous vous remercions de votre confiance.</p>
<p>L'équipe FreelanceFlow</p>
`))

// NewSMTPNotifier validates cfg and creates the notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if cfg.Username == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if cfg.Password == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if cfg.FromEmail == "" {
		missing = append(missing, "SMTP_FROM_EMAIL")
	}
	if len(missing) > 0 {
		return nil, &domain.ConfigError{Keys: missing}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "FreelanceFlow"
	}

	n := &SMTPNotifier{cfg: cfg}
	n.send = n.deliver
	return n, nil
}

// SendConfirmation emails the requester.
func (n *SMTPNotifier) SendConfirmation(ctx context.Context, mission domain.Mission, recordID string) error {
	if _, err := mail.ParseAddress(mission.ClientEmail); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", mission.ClientEmail, err)
	}

	msg, err := n.buildMessage(mission, recordID)
	if err != nil {
		return err
	}
	if err := n.send(ctx, n.cfg.FromEmail, []string{mission.ClientEmail}, msg); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

// Name returns "smtp".
func (n *SMTPNotifier) Name() string { return "smtp" }

// Close is a no-op; each message uses its own connection.
func (n *SMTPNotifier) Close() error { return nil }

func (n *SMTPNotifier) buildMessage(mission domain.Mission, recordID string) ([]byte, error) {
	var body bytes.Buffer
	data := struct {
		domain.Mission
		RecordID string
	}{mission, recordID}
	if err := confirmationTmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render confirmation: %w", err)
	}

	from := mail.Address{Name: n.cfg.FromName, Address: n.cfg.FromEmail}
	subject := "Confirmation de votre mission - " + mission.Service

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", mission.ClientEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&msg)
	if _, err := qp.Write(body.Bytes()); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// deliver opens a connection, requires STARTTLS, authenticates and sends.
func (n *SMTPNotifier) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	dialer := &net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if n.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(n.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server %s does not support STARTTLS", addr)
	}
	if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
