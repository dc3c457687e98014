package otp

import (
	"bytes"
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
)

var (
	codePattern  = regexp.MustCompile(`(?:^|[^#\w&])(\d{6})(?:[^\w]|$)`)
	blockPattern = regexp.MustCompile(`(?is)<(?:style|script)[^>]*>.*?</(?:style|script)>`)
	tagPattern   = regexp.MustCompile(`(?s)<[^>]+>`)
)

// IMAPConfig locates the mailbox the codes are mailed to.
type IMAPConfig struct {
	Addr            string
	Username        string
	Password        string
	Mailbox         string
	SubjectContains string
	Timeout         time.Duration
	PollEvery       time.Duration
}

// IMAPSource polls a mailbox for the newest code mail that arrived after
// the source was created. Each code is handed out once, so a rejected code
// makes the next attempt wait for a fresh mail.
type IMAPSource struct {
	cfg     IMAPConfig
	since   time.Time
	lastUID imap.UID
	log     *logrus.Entry
}

func NewIMAPSource(cfg IMAPConfig, log *logrus.Logger) *IMAPSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 5 * time.Second
	}
	return &IMAPSource{
		cfg:   cfg,
		since: time.Now().Add(-time.Minute),
		log:   log.WithFields(logrus.Fields{"component": "otp", "mailbox": cfg.Mailbox}),
	}
}

func (s *IMAPSource) Code(ctx context.Context, attempt int) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	c, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = c.Logout().Wait()
		_ = c.Close()
	}()

	log := s.log.WithField("attempt", attempt)
	log.Info("waiting for OTP mail")
	for {
		code, uid, err := s.poll(ctx, c)
		if err != nil {
			return "", err
		}
		if code != "" {
			s.lastUID = uid
			log.WithField("uid", uid).Info("OTP read from mailbox")
			return code, nil
		}

		t := time.NewTimer(s.cfg.PollEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", fmt.Errorf("no OTP mail: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func (s *IMAPSource) dial(ctx context.Context) (*imapclient.Client, error) {
	host := s.cfg.Addr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	c, err := imapclient.DialTLS(s.cfg.Addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Unblocks pending commands when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap select %s: %w", s.cfg.Mailbox, err)
	}
	return c, nil
}

// poll returns the code from the newest unused matching message, or "" when
// there is none yet.
func (s *IMAPSource) poll(ctx context.Context, c *imapclient.Client) (string, imap.UID, error) {
	criteria := &imap.SearchCriteria{Since: s.since}
	if s.cfg.SubjectContains != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: s.cfg.SubjectContains}}
	}
	data, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return "", 0, fmt.Errorf("imap uid search: %w", err)
	}

	uids := slices.DeleteFunc(data.AllUIDs(), func(u imap.UID) bool { return u <= s.lastUID })
	if len(uids) == 0 {
		return "", 0, nil
	}
	slices.Sort(uids)
	slices.Reverse(uids)

	body := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetch := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{body},
	})
	defer func() { _ = fetch.Close() }()

	type candidate struct {
		uid  imap.UID
		code string
	}
	var found []candidate
	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		msg := fetch.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return "", 0, fmt.Errorf("imap fetch collect: %w", err)
		}
		if !buf.InternalDate.IsZero() && buf.InternalDate.Before(s.since) {
			continue
		}
		raw := buf.FindBodySection(body)
		if raw == nil {
			continue
		}
		text, err := MessageText(bytes.NewReader(raw))
		if err != nil {
			s.log.WithError(err).WithField("uid", buf.UID).Warn("unreadable message")
			continue
		}
		if code := ExtractCode(text); code != "" {
			found = append(found, candidate{uid: buf.UID, code: code})
		}
	}
	if err := fetch.Close(); err != nil {
		return "", 0, fmt.Errorf("imap fetch close: %w", err)
	}
	if len(found) == 0 {
		return "", 0, nil
	}
	newest := slices.MaxFunc(found, func(a, b candidate) int { return cmp.Compare(a.uid, b.uid) })
	return newest.code, newest.uid, nil
}

// MessageText returns the subject and every text part of a RFC 822
// message, joined by newlines.
func MessageText(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	var parts []string
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		parts = append(parts, subject)
	}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return strings.Join(parts, "\n"), fmt.Errorf("reading part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && !strings.HasPrefix(ct, "text/") {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(p.Body, 1<<20))
		if err != nil {
			return strings.Join(parts, "\n"), fmt.Errorf("reading part body: %w", err)
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n"), nil
}

// ExtractCode returns the first standalone 6-digit number outside markup,
// or "".
func ExtractCode(text string) string {
	text = blockPattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	m := codePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
