package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"CrawlerJobStreet/internal/browser"
)

// CodeSource supplies the one-time code for an attempt (1-based). It may
// block for as long as the operator needs.
type CodeSource interface {
	Code(ctx context.Context, attempt int) (string, error)
}

var otpFormat = regexp.MustCompile(`^\d{6}$`)

type otpOutcome int

const (
	otpPending otpOutcome = iota
	otpAccepted
	otpRejected
)

// Login signs in with the configured email and a one-time code. Any failure
// is ErrLoginFailed or ErrOTPFailed and ends the session.
func (s *Session) Login(ctx context.Context) error {
	sel := s.cfg.Selectors
	t := s.cfg.Timing
	log := s.log.WithField("email", s.cfg.Site.Email)

	signIn, err := s.loc.Locate(ctx, sel.SignIn, t.LongWait, Present)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if !s.loc.Click(ctx, signIn) {
		log.Warn("sign-in click failed, trying the email step anyway")
	}

	email, err := s.loc.Locate(ctx, sel.EmailInput, t.LongWait, Present)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	_ = email.Clear(ctx)
	if err := email.SendKeys(ctx, s.cfg.Site.Email); err != nil {
		return fmt.Errorf("%w: typing email: %w", ErrLoginFailed, err)
	}
	if !s.confirmValue(ctx, email, s.cfg.Site.Email) {
		return fmt.Errorf("%w: email field never showed %q", ErrLoginFailed, s.cfg.Site.Email)
	}
	if err := email.PressEnter(ctx); err != nil {
		return fmt.Errorf("%w: submitting email: %w", ErrLoginFailed, err)
	}
	log.Info("email submitted, waiting for one-time code")

	return s.verifyOTP(ctx)
}

func (s *Session) confirmValue(ctx context.Context, el browser.Element, want string) bool {
	for i := 0; i < s.cfg.Policy.ConfirmPolls; i++ {
		if v, err := el.Value(ctx); err == nil && v == want {
			return true
		}
		if err := sleep(ctx, s.cfg.Timing.ConfirmInterval); err != nil {
			return false
		}
	}
	return false
}

func (s *Session) verifyOTP(ctx context.Context) error {
	sel := s.cfg.Selectors
	t := s.cfg.Timing
	maxAttempts := s.cfg.Policy.OTPAttempts

	for attempt := 1; attempt <= maxAttempts; {
		code, err := s.codes.Code(ctx, attempt)
		if err != nil {
			return fmt.Errorf("%w: reading code: %w", ErrOTPFailed, err)
		}
		code = strings.TrimSpace(code)
		if !otpFormat.MatchString(code) {
			s.log.Error("invalid OTP format, please enter a 6-digit code")
			continue
		}
		log := s.log.WithFields(logrus.Fields{"attempt": attempt, "max": maxAttempts})

		input, err := s.loc.Locate(ctx, sel.OTPInput, t.LongWait, Present)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOTPFailed, err)
		}
		s.loc.Click(ctx, input)
		_ = input.Clear(ctx)
		stale := s.awaitAlertGone(ctx)
		for _, d := range code {
			if err := input.SendKeys(ctx, string(d)); err != nil {
				return fmt.Errorf("%w: typing code: %w", ErrOTPFailed, err)
			}
			if err := sleep(ctx, t.KeystrokeDelay); err != nil {
				return err
			}
		}

		switch s.awaitOTPOutcome(ctx, stale) {
		case otpAccepted:
			log.Info("logged in")
			return nil
		case otpRejected:
			log.Warn("code rejected")
			attempt++
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: no home page after entering code", ErrOTPFailed)
		}
	}
	return fmt.Errorf("%w: code rejected %d times", ErrOTPFailed, maxAttempts)
}

// awaitAlertGone gives an alert left over from the previous attempt a short
// window to go away. It reports whether the alert is still showing.
func (s *Session) awaitAlertGone(ctx context.Context) bool {
	sel := s.cfg.Selectors
	if !s.loc.AnyVisible(ctx, sel.OTPInvalid) {
		return false
	}
	err := s.loc.Until(ctx, s.cfg.Timing.ShortWait, func(ctx context.Context) bool {
		return !s.loc.AnyVisible(ctx, sel.OTPInvalid)
	})
	return err != nil
}

// awaitOTPOutcome waits for either the authenticated landing marker or the
// inline invalid-code alert. A stale alert only counts as a rejection once
// it has gone and come back, or when the landing marker never shows up.
func (s *Session) awaitOTPOutcome(ctx context.Context, stale bool) otpOutcome {
	sel := s.cfg.Selectors
	outcome := otpPending
	_ = s.loc.Until(ctx, s.cfg.Timing.LongWait, func(ctx context.Context) bool {
		if s.loc.Exists(ctx, sel.HomePage) {
			outcome = otpAccepted
			return true
		}
		visible := s.loc.AnyVisible(ctx, sel.OTPInvalid)
		switch {
		case visible && !stale:
			outcome = otpRejected
		case !visible:
			stale = false
		}
		return outcome != otpPending
	})
	if outcome == otpPending && stale && ctx.Err() == nil && s.loc.AnyVisible(ctx, sel.OTPInvalid) {
		outcome = otpRejected
	}
	return outcome
}
