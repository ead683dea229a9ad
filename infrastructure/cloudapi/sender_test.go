package cloudapi

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

func newTestSender(useTemplates bool, rt roundTripperFunc, waits *[]time.Duration) *Sender {
	retry := messaging.DefaultRetryPolicy()
	retry.Sleep = func(_ context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}
		return nil
	}
	cfg := config.CloudAPIConfig{
		BaseURL:       "https://graph.test/v21.0",
		Token:         "tok",
		PhoneNumberID: "12345",
		UseTemplates:  useTemplates,
	}
	return NewSender(cfg, time.Second, retry).WithHTTPClient(&http.Client{Transport: rt})
}

var testPhone = leadsDomain.MustParsePhoneNumber("5581999998888")

func testMessage() dispatchDomain.Message {
	return dispatchDomain.Message{LeadID: 7, Pitch: leadsDomain.PitchFor(leadsDomain.ProductLojaky)}
}

func TestStructurallyValid(t *testing.T) {
	valid := []string{"5581999998888", "551133334444", "5511987654321"}
	for _, p := range valid {
		assert.True(t, StructurallyValid(p), p)
	}

	invalid := []string{
		"",
		"5501999998888",  // DDD con cero
		"5510999998888",  // DDD con cero
		"5581899998888",  // 9 dígitos sin 9 inicial
		"558133334",      // corto
		"551163334444",   // fijo que empieza en 6
		"15551234567",    // otro país
		"55819999988881", // largo
	}
	for _, p := range invalid {
		assert.False(t, StructurallyValid(p), p)
	}
}

func TestSend_Template(t *testing.T) {
	var got messageRequest
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v21.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return jsonResponse(http.StatusOK, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`), nil
	}, nil)

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.Delivered, out.Kind)
	assert.Equal(t, "wamid.ABC", out.Ref)
	assert.Equal(t, "template", got.Type)
	require.NotNil(t, got.Template)
	assert.Equal(t, "lojaky_first_contact", got.Template.Name)
	assert.Equal(t, "pt_BR", got.Template.Language.Code)
	assert.Equal(t, "5581999998888", got.To)
}

func TestSend_Text(t *testing.T) {
	var got messageRequest
	s := newTestSender(false, func(r *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return jsonResponse(http.StatusOK, `{"messages":[{"id":"wamid.T"}]}`), nil
	}, nil)

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.Delivered, out.Kind)
	assert.Equal(t, "text", got.Type)
	require.NotNil(t, got.Text)
	assert.Contains(t, got.Text.Body, "Lojaky")
	assert.Nil(t, got.Template)
}

func TestSend_InvalidRecipientIsNonRetryable(t *testing.T) {
	calls := 0
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest, `{"error":{"message":"(#131030) Recipient phone number not in allowed list","code":131030}}`), nil
	}, nil)

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.NonRetryable, out.Kind)
	assert.Equal(t, 1, calls)
}

func TestSend_Code100IsNonRetryable(t *testing.T) {
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"message":"Invalid parameter","code":100}}`), nil
	}, nil)

	out := s.Send(context.Background(), testPhone, testMessage())
	assert.Equal(t, dispatchDomain.NonRetryable, out.Kind)
}

func TestSend_RateLimitBySubcode(t *testing.T) {
	var waits []time.Duration
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"message":"Spam rate limit hit","code":4,"error_subcode":131048}}`), nil
	}, &waits)

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.RateLimited, out.Kind)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{8 * time.Second, 16 * time.Second}, waits)
}

func TestSend_ServerErrorRetried(t *testing.T) {
	calls := 0
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusServiceUnavailable, `<html>unavailable</html>`), nil
		}
		return jsonResponse(http.StatusOK, `{"messages":[{"id":"wamid.2"}]}`), nil
	}, nil)

	out := s.Send(context.Background(), testPhone, testMessage())

	assert.Equal(t, dispatchDomain.Delivered, out.Kind)
	assert.Equal(t, 2, calls)
}

func TestRateLimitWait(t *testing.T) {
	assert.Equal(t, 8*time.Second, rateLimitWait(1))
	assert.Equal(t, 32*time.Second, rateLimitWait(3))
	assert.Equal(t, time.Minute, rateLimitWait(10))
}

func TestCheckSession(t *testing.T) {
	s := newTestSender(true, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v21.0/12345", r.URL.Path)
		return jsonResponse(http.StatusOK, `{"display_phone_number":"+55 81 3333-0000","quality_rating":"GREEN","status":"CONNECTED"}`), nil
	}, nil)

	status := s.CheckSession(context.Background())
	assert.True(t, status.Connected)
	assert.Equal(t, "+55 81 3333-0000", status.Account)
	assert.Contains(t, status.Detail, "GREEN")
}
