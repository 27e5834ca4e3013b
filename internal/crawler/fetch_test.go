package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(FetchResponse), args.Error(1)
}

func TestFixedRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewFixedRetryPolicy(3, 2*time.Second)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"network error", errors.New("connection refused"), 1, true},
		{"ceiling reached", errors.New("connection refused"), 3, false},
		{"server error", &StatusError{Code: http.StatusBadGateway}, 1, true},
		{"request timeout", &StatusError{Code: http.StatusRequestTimeout}, 2, true},
		{"rate limited", &StatusError{Code: http.StatusTooManyRequests}, 1, true},
		{"not found", &StatusError{Code: http.StatusNotFound}, 1, false},
		{"forbidden wrapped", fmt.Errorf("get: %w", &StatusError{Code: http.StatusForbidden}), 1, false},
		{"canceled", fmt.Errorf("visit: %w", context.Canceled), 1, false},
		{"per-request timeout", fmt.Errorf("visit: %w", context.DeadlineExceeded), 1, true},
		{"oversized body", fmt.Errorf("colly response failed: %w", ErrBodyTooLarge), 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 3, p.MaxAttempts())
}

func TestFixedRetryPolicyClamps(t *testing.T) {
	t.Parallel()

	p := NewFixedRetryPolicy(0, -time.Second)
	assert.Equal(t, 1, p.MaxAttempts())
	assert.Zero(t, p.Backoff(1))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 1))
}

func TestRetryingFetcherSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	// Arrange
	inner := new(MockFetcher)
	req := FetchRequest{URL: "http://h/a.png"}
	inner.On("Fetch", mock.Anything, req).Return(FetchResponse{}, errors.New("reset")).Once()
	inner.On("Fetch", mock.Anything, req).Return(FetchResponse{StatusCode: http.StatusServiceUnavailable}, nil).Once()
	inner.On("Fetch", mock.Anything, req).Return(FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"image/png"}},
		Body:       []byte("png"),
	}, nil).Once()
	clk := newFakeClock()
	f := NewRetryingFetcher(inner, NewFixedRetryPolicy(3, time.Second), clk, false, nil)

	// Act
	res, err := f.Fetch(context.Background(), "http://h/a.png")

	// Assert
	require.NoError(t, err)
	inner.AssertNumberOfCalls(t, "Fetch", 3)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "png", string(res.Body))
	assert.Equal(t, 2, clk.Sleeps())
}

func TestRetryingFetcherGivesUp(t *testing.T) {
	t.Parallel()

	inner := new(MockFetcher)
	inner.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{StatusCode: http.StatusInternalServerError}, nil)
	clk := newFakeClock()
	f := NewRetryingFetcher(inner, NewFixedRetryPolicy(3, time.Second), clk, false, nil)

	_, err := f.Fetch(context.Background(), "http://h/x")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, "http://h/x", fetchErr.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	inner.AssertNumberOfCalls(t, "Fetch", 3)
	assert.Equal(t, 2, clk.Sleeps())
	assert.Equal(t, 3, attemptsOf(err))
}

func TestRetryingFetcherClientErrorFailsFast(t *testing.T) {
	t.Parallel()

	inner := new(MockFetcher)
	inner.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{StatusCode: http.StatusNotFound}, nil)
	f := NewRetryingFetcher(inner, nil, newFakeClock(), false, nil)

	_, err := f.Fetch(context.Background(), "http://h/missing")

	require.Error(t, err)
	inner.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRetryingFetcherAcceptAnyStatus(t *testing.T) {
	t.Parallel()

	inner := new(MockFetcher)
	inner.On("Fetch", mock.Anything, mock.Anything).Return(FetchResponse{StatusCode: http.StatusNotFound, Body: []byte("404 page")}, nil)
	f := NewRetryingFetcher(inner, nil, newFakeClock(), true, nil)

	res, err := f.Fetch(context.Background(), "http://h/missing")

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "404 page", string(res.Body))
}

func TestRetryingFetcherStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	inner := new(MockFetcher)
	inner.On("Fetch", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(FetchResponse{}, errors.New("interrupted"))
	f := NewRetryingFetcher(inner, nil, newFakeClock(), false, nil)

	_, err := f.Fetch(ctx, "http://h/x")

	require.Error(t, err)
	inner.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestResourceText(t *testing.T) {
	t.Parallel()

	latin1 := Resource{ContentType: "text/html; charset=iso-8859-1", Body: []byte("caf\xe9")}
	text, ok := latin1.Text()
	require.True(t, ok)
	assert.Equal(t, "café", text)
	assert.True(t, latin1.IsHTML())

	sniffed := Resource{Body: []byte("<!DOCTYPE html><html><body>x</body></html>")}
	assert.True(t, sniffed.IsHTML())

	binary := Resource{ContentType: "image/png", Body: []byte("\x89PNG")}
	_, ok = binary.Text()
	assert.False(t, ok)
	assert.False(t, binary.IsHTML())

	js := Resource{ContentType: "application/javascript", Body: []byte("x()")}
	assert.True(t, js.IsText())
	assert.Equal(t, "application/javascript", js.MediaType())
}
