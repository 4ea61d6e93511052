package teller

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

// DefaultBaseURL is the production Teller API.
const DefaultBaseURL = "https://api.teller.io/"

var (
	// ErrRetriesExhausted wraps the last error after every attempt for a page failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMalformedResponse marks a response body that is not a transaction list. It is not retried.
	ErrMalformedResponse = errors.New("malformed teller response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("teller responded %d: %s", e.Code, e.Body)
}

// Config controls the client's transport and retry behavior.
type Config struct {
	BaseURL           string
	CertificatePath   string
	PrivateKeyPath    string
	Timeout           time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	RequestsPerSecond float64
	Burst             int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Client fetches account transactions. Safe for concurrent use by several feeds.
type Client struct {
	http        *http.Client
	baseURL     *url.URL
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
}

// New builds a client, loading the client certificate when one is configured.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CertificatePath != "" || cfg.PrivateKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertificatePath, cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading teller client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return NewWithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.Timeout}, cfg)
}

// NewWithHTTPClient builds a client on an existing http.Client.
func NewWithHTTPClient(hc *http.Client, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing teller base url: %w", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		http:        hc,
		baseURL:     base,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Transactions walks the account's history newest first and returns posted
// transactions dated after bookmark. Paging stops at the first page holding a
// posted transaction on or before bookmark, or at an empty page. Records that
// cannot be parsed are logged and dropped.
func (c *Client) Transactions(ctx context.Context, accountID, accessToken string, bookmark time.Time, pageSize int) ([]model.RemoteTransaction, error) {
	log := logger.FromContext(ctx)

	var (
		out    []model.RemoteTransaction
		fromID string
	)
	for pageNum := 1; ; pageNum++ {
		p, err := c.pageWithRetry(ctx, accountID, accessToken, pageSize, fromID)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d for account %s: %w", pageNum, accountID, err)
		}
		if p.size == 0 {
			break
		}

		reachedBookmark := false
		for _, t := range p.posted {
			if t.Date.After(bookmark) {
				out = append(out, t)
			} else {
				reachedBookmark = true
			}
		}

		log.Debug().Int("page", pageNum).Int("records", p.size).Int("kept", len(out)).Msg("fetched teller page")
		if reachedBookmark {
			break
		}
		if p.lastID == "" || p.lastID == fromID {
			log.Warn().Int("page", pageNum).Str("account", accountID).Msg("teller page has no usable cursor, stopping")
			break
		}
		fromID = p.lastID
	}
	return out, nil
}

// pageResult is one decoded response.
type pageResult struct {
	size   int
	lastID string
	posted []model.RemoteTransaction
}

func (c *Client) pageWithRetry(ctx context.Context, accountID, accessToken string, pageSize int, fromID string) (pageResult, error) {
	log := logger.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.backoffBase << c.maxAttempts
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	var (
		p        pageResult
		attempts int
	)
	err := backoff.RetryNotify(func() error {
		attempts++
		var err error
		p, err = c.page(ctx, accountID, accessToken, pageSize, fromID)
		if errors.Is(err, ErrMalformedResponse) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, delay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", delay).Str("account", accountID).Msg("teller request failed, retrying")
	})
	switch {
	case err == nil:
		return p, nil
	case ctx.Err() != nil:
		return pageResult{}, ctx.Err()
	case errors.Is(err, ErrMalformedResponse):
		return pageResult{}, err
	default:
		return pageResult{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
}

func (c *Client) page(ctx context.Context, accountID, accessToken string, pageSize int, fromID string) (pageResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return pageResult{}, err
	}

	u := c.baseURL.JoinPath("accounts", accountID, "transactions")
	q := url.Values{}
	q.Set("count", strconv.Itoa(pageSize))
	if fromID != "" {
		q.Set("from_id", fromID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return pageResult{}, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(accessToken, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pageResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pageResult{}, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return pageResult{}, ctx.Err()
		}
		return pageResult{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return decodePage(ctx, raw), nil
}

// decodePage parses each record on its own. Pending records are skipped
// unparsed; a posted record with a bad field is logged and dropped.
func decodePage(ctx context.Context, raw []json.RawMessage) pageResult {
	log := logger.FromContext(ctx)

	p := pageResult{size: len(raw)}
	for i, r := range raw {
		var w wireTransaction
		if err := json.Unmarshal(r, &w); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("dropping undecodable teller record")
			continue
		}
		if w.ID != "" {
			p.lastID = w.ID
		}
		if model.RemoteStatus(w.Status) != model.StatusPosted {
			continue
		}
		t, err := w.toModel()
		if err != nil {
			log.Warn().Err(err).Str("id", w.ID).Msg("dropping malformed teller record")
			continue
		}
		p.posted = append(p.posted, t)
	}
	return p
}

type wireTransaction struct {
	Status      string          `json:"status"`
	ID          string          `json:"id"`
	Amount      json.RawMessage `json:"amount"`
	Date        json.RawMessage `json:"date"`
	Description string          `json:"description"`
}

func (w wireTransaction) toModel() (model.RemoteTransaction, error) {
	var date string
	if err := json.Unmarshal(w.Date, &date); err != nil {
		return model.RemoteTransaction{}, fmt.Errorf("transaction %s: reading date: %w", w.ID, err)
	}
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return model.RemoteTransaction{}, fmt.Errorf("transaction %s: parsing date %q: %w", w.ID, date, err)
	}
	if len(w.Amount) == 0 || string(w.Amount) == "null" {
		return model.RemoteTransaction{}, fmt.Errorf("transaction %s: missing amount", w.ID)
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(w.Amount); err != nil {
		return model.RemoteTransaction{}, fmt.Errorf("transaction %s: parsing amount %s: %w", w.ID, w.Amount, err)
	}
	return model.RemoteTransaction{
		Status:      model.StatusPosted,
		ID:          w.ID,
		Amount:      amount,
		Date:        d,
		Description: w.Description,
	}, nil
}
