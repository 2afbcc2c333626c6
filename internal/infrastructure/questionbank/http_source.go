package questionbank

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/sirupsen/logrus"
)

// errUpstreamRejected marks a 4xx answer; retrying will not change it.
var errUpstreamRejected = errors.New("upstream rejected request")

// HTTPSourceConfig configures the upstream question bank source.
type HTTPSourceConfig struct {
	URL          string
	MaxAttempts  int
	InitialDelay time.Duration
}

// HTTPSource fetches the question bank from the upstream API. Requests go
// through a ports.Fetcher, normally the offline controller, so the bank is
// raced against and written into the cache like any API call.
type HTTPSource struct {
	url     *url.URL
	fetcher ports.Fetcher
	decoder *Validator
	retrier retry.Retry[question.Bank]
	logger  *logrus.Logger
}

func NewHTTPSource(fetcher ports.Fetcher, decoder *Validator, cfg HTTPSourceConfig, logger *logrus.Logger) (*HTTPSource, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	return &HTTPSource{
		url:     u,
		fetcher: fetcher,
		decoder: decoder,
		retrier: retry.New[question.Bank](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// A malformed bank or a 4xx is final.
			NonRetryableErrors: []error{question.ErrInvalidBank, errUpstreamRejected},
		}),
		logger: logger,
	}, nil
}

func (s *HTTPSource) Name() string { return "upstream" }

func (s *HTTPSource) FetchBank(ctx context.Context) (question.Bank, error) {
	return s.retrier.Do(ctx, func(ctx context.Context) (question.Bank, error) {
		req := offline.NewRequest(s.url)
		req.Header.Set("Accept", "application/json")
		resp, err := s.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch question bank: %w", err)
		}
		switch {
		case resp.Status >= 200 && resp.Status < 300:
		case resp.Status >= 400 && resp.Status < 500:
			return nil, fmt.Errorf("%w: status %d", errUpstreamRejected, resp.Status)
		default:
			return nil, fmt.Errorf("fetch question bank: status %d", resp.Status)
		}
		bank, err := s.decoder.Decode(resp.Body)
		if err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": s.url.String(), "questions": bank.Count()}).Debug("question bank fetched")
		}
		return bank, nil
	})
}
