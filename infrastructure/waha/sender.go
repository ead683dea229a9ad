package waha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/sirupsen/logrus"
)

const backendName = "waha"

// Mensajes de WAHA que indican que el número nunca recibirá el mensaje
var nonRetryableMarkers = []string{
	"no lid for user",
	"number does not exist",
	"not registered",
	"invalid jid",
}

// Sender envía por una instancia WAHA (WhatsApp HTTP API)
type Sender struct {
	baseURL string
	apiKey  string
	session string
	timeout time.Duration
	retry   messaging.RetryPolicy
	client  *http.Client
}

func NewSender(cfg config.WAHAConfig, timeout time.Duration, retry messaging.RetryPolicy) *Sender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	session := cfg.Session
	if session == "" {
		session = "default"
	}
	return &Sender{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		session: session,
		timeout: timeout,
		retry:   retry,
		client:  &http.Client{},
	}
}

// WithHTTPClient permite inyectar el transporte (tests)
func (s *Sender) WithHTTPClient(c *http.Client) *Sender {
	s.client = c
	return s
}

func (s *Sender) Name() string { return backendName }

func (s *Sender) headers() map[string]string {
	return map[string]string{"X-Api-Key": s.apiKey}
}

// Validate consulta checkNumberStatus. Si la consulta falla no se sabe nada del número:
// devuelve ErrNumberCheckUnavailable y el lead sigue Pending.
func (s *Sender) Validate(ctx context.Context, phone leadsDomain.PhoneNumber) (bool, error) {
	q := url.Values{}
	q.Set("session", s.session)
	q.Set("phone", phone.String())

	resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodGet,
		s.baseURL+"/api/checkNumberStatus?"+q.Encode(), s.headers(), nil)
	if err != nil {
		logrus.WithField("phone", phone.String()).Warnf("[WAHA] Number check failed: %v", err)
		return false, fmt.Errorf("%w: %v", dispatchDomain.ErrNumberCheckUnavailable, err)
	}
	if !resp.OK() {
		logrus.WithField("phone", phone.String()).Warnf("[WAHA] Number check returned HTTP %d", resp.StatusCode)
		return false, fmt.Errorf("%w: HTTP %d: %s", dispatchDomain.ErrNumberCheckUnavailable, resp.StatusCode, snippet(resp.Body))
	}

	var body struct {
		NumberExists bool `json:"numberExists"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return false, fmt.Errorf("%w: %v", dispatchDomain.ErrNumberCheckUnavailable, err)
	}
	return body.NumberExists, nil
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

func (s *Sender) Send(ctx context.Context, phone leadsDomain.PhoneNumber, msg dispatchDomain.Message) dispatchDomain.Outcome {
	payload := sendTextRequest{
		Session: s.session,
		ChatID:  phone.ChatID(),
		Text:    msg.Pitch.Text,
	}

	out := s.retry.Do(ctx, backendName, func(ctx context.Context, n int) dispatchDomain.Outcome {
		resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodPost,
			s.baseURL+"/api/sendText", s.headers(), payload)
		if err != nil {
			return messaging.TransportFailure(err)
		}
		return classify(resp)
	})

	logrus.WithFields(logrus.Fields{
		"lead_id":  msg.LeadID,
		"phone":    phone.String(),
		"outcome":  out.Kind.String(),
		"attempts": out.Attempts,
	}).Debug("[WAHA] Send finished")
	return out
}

func classify(resp messaging.Response) dispatchDomain.Outcome {
	if resp.OK() {
		var body struct {
			ID interface{} `json:"id"`
		}
		_ = resp.DecodeJSON(&body)
		return dispatchDomain.DeliveredOutcome(messageRef(body.ID))
	}

	text := strings.ToLower(errorMessage(resp.Body))
	if text != "" {
		for _, marker := range nonRetryableMarkers {
			if strings.Contains(text, marker) {
				return dispatchDomain.NonRetryableOutcome(marker)
			}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return dispatchDomain.RateLimitedOutcome(messaging.RetryAfterHeader(resp.Header), "HTTP 429")
	}
	// cualquier otro código (404 = sesión inexistente incluido) no dice nada del número
	return dispatchDomain.TransientOutcome(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(resp.Body)))
}

// errorMessage lee exception.message (errores 500 de WAHA) y si no hay, message
func errorMessage(body []byte) string {
	var e struct {
		Exception json.RawMessage `json:"exception"`
		Message   interface{}     `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	var exc struct {
		Message string `json:"message"`
	}
	if len(e.Exception) > 0 && json.Unmarshal(e.Exception, &exc) == nil && exc.Message != "" {
		return exc.Message
	}
	if e.Message != nil {
		return fmt.Sprint(e.Message)
	}
	return ""
}

// WAHA devuelve id como string o como objeto {_serialized: "..."} según el engine
func messageRef(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case map[string]interface{}:
		if s, ok := v["_serialized"].(string); ok {
			return s
		}
		if s, ok := v["id"].(string); ok {
			return s
		}
	}
	return ""
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// CheckSession lista las sesiones y reporta si la configurada está WORKING
func (s *Sender) CheckSession(ctx context.Context) dispatchDomain.SessionStatus {
	status := dispatchDomain.SessionStatus{Backend: backendName}

	resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodGet, s.baseURL+"/api/sessions", s.headers(), nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	if !resp.OK() {
		status.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}

	var sessions []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Me     *struct {
			ID       string `json:"id"`
			PushName string `json:"pushName"`
		} `json:"me"`
	}
	if err := resp.DecodeJSON(&sessions); err != nil {
		status.Detail = "unexpected sessions payload"
		return status
	}

	for _, sess := range sessions {
		if sess.Name != s.session {
			continue
		}
		status.Connected = strings.EqualFold(sess.Status, "WORKING")
		status.Detail = sess.Status
		if sess.Me != nil {
			status.Account = sess.Me.ID
		}
		return status
	}
	status.Detail = fmt.Sprintf("session %q not found", s.session)
	return status
}
