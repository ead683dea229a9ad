package cloudapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/sirupsen/logrus"
)

const backendName = "cloudapi"

// Códigos de la Graph API que piden bajar el ritmo (code o error_subcode)
var rateLimitCodes = map[int]bool{
	130429: true, // throughput
	131048: true, // spam rate limit
	131056: true, // pair rate limit
	80007:  true, // WABA rate limit
}

var nonRetryableMarkers = []string{
	"invalid whatsapp number",
	"not a valid whatsapp account",
	"recipient is not a valid whatsapp account",
	"message undeliverable",
	"incapable of receiving this message",
	"(#131030)",
	"(#100)",
}

// Sender usa la WhatsApp Business Cloud API oficial
type Sender struct {
	baseURL       string
	token         string
	phoneNumberID string
	useTemplates  bool
	timeout       time.Duration
	retry         messaging.RetryPolicy
	client        *http.Client
}

func NewSender(cfg config.CloudAPIConfig, timeout time.Duration, retry messaging.RetryPolicy) *Sender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com/v21.0"
	}
	return &Sender{
		baseURL:       base,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		useTemplates:  cfg.UseTemplates,
		timeout:       timeout,
		retry:         retry,
		client:        &http.Client{},
	}
}

func (s *Sender) WithHTTPClient(c *http.Client) *Sender {
	s.client = c
	return s
}

func (s *Sender) Name() string { return backendName }

func (s *Sender) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

// Validate es local: la Cloud API no tiene endpoint de verificación de contactos.
// Acepta 55 + DDD (11-99, sin ceros) + abonado de 8 (fijo 2-5) o 9 (móvil con 9).
func (s *Sender) Validate(_ context.Context, phone leadsDomain.PhoneNumber) (bool, error) {
	return StructurallyValid(phone.String()), nil
}

func StructurallyValid(digits string) bool {
	if len(digits) < leadsDomain.MinPhoneLength || len(digits) > leadsDomain.MaxPhoneLength {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	if !strings.HasPrefix(digits, leadsDomain.CountryCode) {
		return false
	}
	ddd := digits[2:4]
	if ddd[0] == '0' || ddd[1] == '0' {
		return false
	}
	subscriber := digits[4:]
	switch len(subscriber) {
	case 9:
		return subscriber[0] == '9'
	case 8:
		return subscriber[0] >= '2' && subscriber[0] <= '5'
	}
	return false
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type messageRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

// buildRequest: el primer contacto iniciado por la empresa va como template aprobado
func (s *Sender) buildRequest(phone leadsDomain.PhoneNumber, msg dispatchDomain.Message) messageRequest {
	req := messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone.String(),
	}
	if s.useTemplates && msg.Pitch.TemplateName != "" {
		lang := msg.Pitch.TemplateLanguage
		if lang == "" {
			lang = "pt_BR"
		}
		req.Type = "template"
		req.Template = &templateBody{Name: msg.Pitch.TemplateName, Language: templateLanguage{Code: lang}}
		return req
	}
	req.Type = "text"
	req.Text = &textBody{PreviewURL: true, Body: msg.Pitch.Text}
	return req
}

func (s *Sender) Send(ctx context.Context, phone leadsDomain.PhoneNumber, msg dispatchDomain.Message) dispatchDomain.Outcome {
	payload := s.buildRequest(phone, msg)
	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)

	out := s.retry.Do(ctx, backendName, func(ctx context.Context, n int) dispatchDomain.Outcome {
		resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodPost, endpoint, s.headers(), payload)
		if err != nil {
			return messaging.TransportFailure(err)
		}
		return classify(resp, n)
	})

	logrus.WithFields(logrus.Fields{
		"lead_id":  msg.LeadID,
		"phone":    phone.String(),
		"type":     payload.Type,
		"outcome":  out.Kind.String(),
		"attempts": out.Attempts,
	}).Debug("[CLOUDAPI] Send finished")
	return out
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	ErrorData    struct {
		Details string `json:"details"`
	} `json:"error_data"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *graphError `json:"error"`
}

func classify(resp messaging.Response, attempt int) dispatchDomain.Outcome {
	var body sendResponse
	decodeErr := resp.DecodeJSON(&body)

	if resp.OK() && body.Error == nil {
		if len(body.Messages) > 0 {
			return dispatchDomain.DeliveredOutcome(body.Messages[0].ID)
		}
		return dispatchDomain.DeliveredOutcome("")
	}

	if body.Error != nil {
		return classifyGraphError(body.Error, attempt)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return dispatchDomain.RateLimitedOutcome(rateLimitWait(attempt), "HTTP 429")
	case decodeErr != nil:
		return dispatchDomain.TransientOutcome(fmt.Sprintf("HTTP %d: unreadable body", resp.StatusCode))
	default:
		return dispatchDomain.TransientOutcome(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}

func classifyGraphError(e *graphError, attempt int) dispatchDomain.Outcome {
	reason := fmt.Sprintf("(#%d) %s", e.Code, e.Message)
	if e.ErrorData.Details != "" {
		reason += ": " + e.ErrorData.Details
	}

	if rateLimitCodes[e.Code] || rateLimitCodes[e.ErrorSubcode] {
		return dispatchDomain.RateLimitedOutcome(rateLimitWait(attempt), reason)
	}
	if e.Code == 100 {
		return dispatchDomain.NonRetryableOutcome(reason)
	}
	lower := strings.ToLower(reason)
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(lower, marker) {
			return dispatchDomain.NonRetryableOutcome(reason)
		}
	}
	return dispatchDomain.TransientOutcome(reason)
}

// rateLimitWait sigue la recomendación de Meta: 2^(intento+2) segundos, máximo 60
func rateLimitWait(attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt+2)) * time.Second
	if wait > time.Minute {
		wait = time.Minute
	}
	return wait
}

// CheckSession consulta el número de negocio configurado
func (s *Sender) CheckSession(ctx context.Context) dispatchDomain.SessionStatus {
	status := dispatchDomain.SessionStatus{Backend: backendName}
	endpoint := fmt.Sprintf("%s/%s?fields=display_phone_number,quality_rating,status,verified_name", s.baseURL, s.phoneNumberID)

	resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodGet, endpoint, s.headers(), nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}

	var body struct {
		DisplayPhoneNumber string      `json:"display_phone_number"`
		QualityRating      string      `json:"quality_rating"`
		Status             string      `json:"status"`
		VerifiedName       string      `json:"verified_name"`
		Error              *graphError `json:"error"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		status.Detail = fmt.Sprintf("HTTP %d: unreadable body", resp.StatusCode)
		return status
	}
	if !resp.OK() || body.Error != nil {
		status.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		if body.Error != nil {
			status.Detail = body.Error.Message
		}
		return status
	}

	status.Connected = true
	status.Account = body.DisplayPhoneNumber
	status.Detail = fmt.Sprintf("quality=%s status=%s", body.QualityRating, body.Status)
	if body.VerifiedName != "" {
		logrus.Debugf("[CLOUDAPI] Business number %s (%s)", body.DisplayPhoneNumber, body.VerifiedName)
	}
	return status
}
