package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

const (
	handshakeTimeout = 30 * time.Second
	quitTimeout      = 5 * time.Second
)

// smtpConn is a gomail.SendCloser that keeps hold of its net.Conn so a
// stalled exchange can be cut off by moving the connection deadline.
type smtpConn struct {
	conn   net.Conn
	client *smtp.Client
}

// dialSMTP connects and authenticates using the dialer's settings. The
// whole handshake runs under a deadline taken from ctx or handshakeTimeout.
func dialSMTP(ctx context.Context, d *gomail.Dialer) (gomail.SendCloser, error) {
	addr := net.JoinHostPort(d.Host, fmt.Sprint(d.Port))

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	conn.SetDeadline(deadline)

	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: d.Host}
	}
	if d.SSL {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, d.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := handshake(c, d, tlsConfig); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetDeadline(time.Time{})
	return &smtpConn{conn: conn, client: c}, nil
}

func handshake(c *smtp.Client, d *gomail.Dialer, tlsConfig *tls.Config) error {
	if !d.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	auth := d.Auth
	if auth == nil && d.Username != "" {
		if ok, auths := c.Extension("AUTH"); ok {
			if strings.Contains(auths, "CRAM-MD5") {
				auth = smtp.CRAMMD5Auth(d.Username, d.Password)
			} else {
				auth = smtp.PlainAuth("", d.Username, d.Password, d.Host)
			}
		}
	}
	if auth != nil {
		return c.Auth(auth)
	}
	return nil
}

func (c *smtpConn) Send(from string, to []string, msg io.WriterTo) error {
	if err := c.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := c.client.Rcpt(addr); err != nil {
			return err
		}
	}

	w, err := c.client.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Close says QUIT. Use only when no Send is in progress.
func (c *smtpConn) Close() error {
	c.conn.SetDeadline(time.Now().Add(quitTimeout))
	return c.client.Quit()
}

// Interrupt fails any read or write in progress. Safe to call while Send runs.
func (c *smtpConn) Interrupt() {
	c.conn.SetDeadline(time.Now())
}

// Abort drops the connection without a QUIT.
func (c *smtpConn) Abort() error {
	return c.conn.Close()
}
