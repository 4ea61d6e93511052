package teller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksync/banksync/internal/model"
)

type wire map[string]any

func tx(id, status, date, amount string) wire {
	return wire{"id": id, "status": status, "date": date, "amount": amount, "description": "desc " + id}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewWithHTTPClient(srv.Client(), Config{BaseURL: srv.URL, BackoffBase: time.Millisecond})
	require.NoError(t, err)
	return c
}

func bookmarkDay(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestTransactionsStopsAtPageReachingBookmark(t *testing.T) {
	pages := map[string][]wire{
		"":   {tx("t1", "posted", "2024-01-10", "-1.00"), tx("t2", "posted", "2024-01-09", "-2.00")},
		"t2": {tx("t3", "posted", "2024-01-08", "-3.00"), tx("t4", "pending", "2024-01-07", "-4.00")},
		"t4": {tx("t5", "posted", "2024-01-06", "-5.00"), tx("t6", "posted", "2024-01-04", "-6.00")},
		"t6": {tx("t7", "posted", "2024-01-03", "-7.00")},
	}
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/accounts/acc_1/transactions", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "token", user)
		assert.Empty(t, pass)
		_ = json.NewEncoder(w).Encode(pages[r.URL.Query().Get("from_id")])
	}))

	got, err := c.Transactions(context.Background(), "acc_1", "token", bookmarkDay(5), 2)
	require.NoError(t, err)

	assert.EqualValues(t, 3, requests.Load())
	ids := make([]string, len(got))
	for i, g := range got {
		ids[i] = g.ID
		assert.True(t, g.Date.After(bookmarkDay(5)))
		assert.Equal(t, model.StatusPosted, g.Status)
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t5"}, ids)
	assert.Equal(t, "-5.00", got[3].Amount.StringFixed(2))
}

func TestTransactionsStopsOnEmptyPage(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			_, _ = w.Write([]byte(`[{"id":"t1","status":"posted","date":"2024-02-01","amount":12.5,"description":"x"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	got, err := c.Transactions(context.Background(), "acc", "token", model.Epoch, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12.50", got[0].Amount.StringFixed(2))
	assert.EqualValues(t, 2, requests.Load())
}

func TestTransactionsRetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		switch {
		case n <= 2:
			http.Error(w, "busy", http.StatusServiceUnavailable)
		case n == 3:
			_ = json.NewEncoder(w).Encode([]wire{tx("t1", "posted", "2024-01-02", "1")})
		default:
			_ = json.NewEncoder(w).Encode([]wire{})
		}
	}))

	got, err := c.Transactions(context.Background(), "acc", "token", model.Epoch, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 4, requests.Load())
}

func TestTransactionsRetriesExhausted(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Transactions(context.Background(), "acc", "token", model.Epoch, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Contains(t, statusErr.Body, "boom")
	assert.EqualValues(t, 5, requests.Load())
}

func TestTransactionsMalformedBodyIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))

	_, err := c.Transactions(context.Background(), "acc", "token", model.Epoch, 10)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.EqualValues(t, 1, requests.Load())
}

func TestTransactionsDropsBadRecordsOnly(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from_id") != "" {
			requests.Add(1)
			_, _ = w.Write([]byte(`[]`))
			return
		}
		requests.Add(1)
		_, _ = w.Write([]byte(`[
			{"id":"t1","status":"posted","date":"2024-02-03","amount":"-4.00","description":"ok"},
			{"id":"t2","status":"pending","date":""},
			{"id":"t3","status":"posted","date":"2024-02-02","amount":"not money","description":"bad amount"},
			{"id":"t4","status":"posted","date":"02/01/2024","amount":"-1.00","description":"bad date"},
			{"id":"t5","status":"posted","date":"2024-01-31","description":"no amount"},
			{"id":"t6","status":"posted","date":"2024-01-30","amount":7.25,"description":"ok too"}
		]`))
	}))

	got, err := c.Transactions(context.Background(), "acc", "token", model.Epoch, 10)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t6", got[1].ID)
	assert.Equal(t, "7.25", got[1].Amount.StringFixed(2))
	assert.EqualValues(t, 2, requests.Load())
}

func TestTransactionsBackoffDoubles(t *testing.T) {
	var (
		requests atomic.Int32
		mu       sync.Mutex
		stamps   []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		if requests.Add(1) <= 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c, err := NewWithHTTPClient(srv.Client(), Config{BaseURL: srv.URL, BackoffBase: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Transactions(context.Background(), "acc", "token", model.Epoch, 10)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 4)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[2]), 80*time.Millisecond)
}

func TestTransactionsCanceledContextStopsRetrying(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	c, err := NewWithHTTPClient(srv.Client(), Config{BaseURL: srv.URL, BackoffBase: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Transactions(ctx, "acc", "token", model.Epoch, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.EqualValues(t, 1, requests.Load())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
}

func TestNewRejectsMissingCertificate(t *testing.T) {
	_, err := New(Config{CertificatePath: "/nonexistent/cert.pem", PrivateKeyPath: "/nonexistent/key.pem"})
	assert.Error(t, err)
}
