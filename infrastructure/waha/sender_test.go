package waha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestSender(rt roundTripperFunc) *Sender {
	retry := messaging.DefaultRetryPolicy()
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	s := NewSender(config.WAHAConfig{URL: "http://waha.local/", APIKey: "secret", Session: "default"}, time.Second, retry)
	return s.WithHTTPClient(&http.Client{Transport: rt})
}

var testPhone = leadsDomain.MustParsePhoneNumber("5581999998888")

func testMessage() dispatchDomain.Message {
	return dispatchDomain.Message{LeadID: 1, BusinessName: "Padaria", Pitch: leadsDomain.PitchFor(leadsDomain.ProductZappy)}
}

func TestSend_Delivered(t *testing.T) {
	var got sendTextRequest
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return jsonResponse(http.StatusCreated, `{"id":"true_5581999998888@c.us_ABC"}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.Delivered, out.Kind)
	assert.Equal(t, "true_5581999998888@c.us_ABC", out.Ref)
	assert.Equal(t, "5581999998888@c.us", got.ChatID)
	assert.Equal(t, "default", got.Session)
	assert.Contains(t, got.Text, "Zappy")
}

func TestSend_NonRetryableMarker(t *testing.T) {
	calls := 0
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusInternalServerError, `{"exception":{"message":"No LID for user"}}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.NonRetryable, out.Kind)
	assert.Equal(t, 1, calls)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	calls := 0
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(http.StatusBadGateway, `bad gateway`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":{"_serialized":"msg-3"}}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.Delivered, out.Kind)
	assert.Equal(t, "msg-3", out.Ref)
	assert.Equal(t, 3, calls)
}

func TestSend_RateLimited(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		resp := jsonResponse(http.StatusTooManyRequests, `{}`)
		resp.Header.Set("Retry-After", "5")
		return resp, nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.RateLimited, out.Kind)
	assert.Equal(t, 5*time.Second, out.RetryAfter)
	assert.Equal(t, 3, out.Attempts)
}

func TestSend_TransportErrorIsTransient(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.TransientFailure, out.Kind)
}

func TestSend_MarkerInTopLevelMessage(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"message":"Number does not exist on WhatsApp"}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.NonRetryable, out.Kind)
}

func TestSend_SessionNotFoundIsTransient(t *testing.T) {
	calls := 0
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusNotFound, `{"message":"Session \"default\" does not exist"}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.TransientFailure, out.Kind)
	assert.Contains(t, out.Reason, "HTTP 404")
	assert.Equal(t, 3, calls)
}

func TestSend_UnprocessableIsTransient(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, `{"message":"session is STARTING"}`), nil
	})

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.TransientFailure, out.Kind)
}

func TestValidate(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/checkNumberStatus", r.URL.Path)
		assert.Equal(t, "default", r.URL.Query().Get("session"))
		if r.URL.Query().Get("phone") == "5581999998888" {
			return jsonResponse(http.StatusOK, `{"numberExists":true,"chatId":"5581999998888@c.us"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"numberExists":false}`), nil
	})

	exists, err := s.Validate(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Validate(context.Background(), leadsDomain.MustParsePhoneNumber("5511988887777"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestValidate_CheckFailureIsError(t *testing.T) {
	cases := map[string]roundTripperFunc{
		"network": func(r *http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		},
		"unavailable": func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"message":"session is not ready"}`), nil
		},
		"bad body": func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `<html>`), nil
		},
	}
	for name, rt := range cases {
		t.Run(name, func(t *testing.T) {
			exists, err := newTestSender(rt).Validate(context.Background(), testPhone)
			assert.False(t, exists)
			assert.ErrorIs(t, err, dispatchDomain.ErrNumberCheckUnavailable)
		})
	}
}

func TestCheckSession(t *testing.T) {
	s := newTestSender(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `[{"name":"default","status":"WORKING","me":{"id":"5581900000000@c.us","pushName":"Vendas"}}]`), nil
	})

	status := s.CheckSession(context.Background())
	assert.True(t, status.Connected)
	assert.Equal(t, "waha", status.Backend)
	assert.Equal(t, "5581900000000@c.us", status.Account)
}
