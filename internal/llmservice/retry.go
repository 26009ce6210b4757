package llmservice

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// RetryPolicy is an exponential backoff for transient provider failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Retry runs fn until it succeeds, fails permanently or the retries are used up.
func Retry[T any](ctx context.Context, p RetryPolicy, provider string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		switch Classify(err) {
		case KindAuth:
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				return zero, err
			}
			return zero, &models.AuthError{Provider: provider, Err: err}
		case KindPermanent:
			return zero, err
		}

		if attempt == p.MaxRetries {
			break
		}
		delay := p.backoff(attempt)
		log.Warn().Err(err).Str("provider", provider).Int("attempt", attempt+1).Dur("delay", delay).Msg("Provider call failed, retrying")
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindAuth
	KindPermanent
)

var statusCodeRe = regexp.MustCompile(`status(?: code)?:? (\d{3})`)

// Classify sorts a provider error into auth, permanent (bad input, cancelled) or transient.
func Classify(err error) ErrorKind {
	var authErr *models.AuthError
	switch {
	case err == nil:
		return KindTransient
	case errors.As(err, &authErr), errors.Is(err, openai.ErrMissingToken):
		return KindAuth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindPermanent
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 401 || code == 403:
			return KindAuth
		case code == 429 || code >= 500:
			return KindTransient
		case code >= 400:
			return KindPermanent
		}
	}
	for _, s := range []string{"invalid api key", "incorrect api key", "invalid_api_key", "unauthorized"} {
		if strings.Contains(msg, s) {
			return KindAuth
		}
	}
	for _, s := range []string{"maximum context length", "too many tokens", "invalid_request_error"} {
		if strings.Contains(msg, s) {
			return KindPermanent
		}
	}
	return KindTransient
}
