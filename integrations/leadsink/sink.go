package leadsink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/sirupsen/logrus"
)

// LeadPayload es la forma que espera el flujo de n8n
type LeadPayload struct {
	ID            int64  `json:"id"`
	BusinessName  string `json:"business_name"`
	Phone         string `json:"phone"`
	Neighborhood  string `json:"neighborhood"`
	Category      string `json:"category"`
	Rating        string `json:"rating"`
	TargetProduct string `json:"target_product"`
	CreatedAt     string `json:"created_at"`
}

type payload struct {
	Leads []LeadPayload `json:"leads"`
	Count int           `json:"count"`
}

// Sink notifica al webhook secundario los leads recién contactados.
// Un fallo nunca cambia el estado de los leads.
type Sink struct {
	url         string
	apiKey      string
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	client      *http.Client
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(cfg config.SinkConfig) *Sink {
	s := &Sink{
		url:         cfg.URL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.BaseBackoff,
		timeout:     cfg.Timeout,
		client:      &http.Client{},
		sleep:       messaging.SleepContext,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.backoff <= 0 {
		s.backoff = 2 * time.Second
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	return s
}

func (s *Sink) WithHTTPClient(c *http.Client) *Sink {
	s.client = c
	return s
}

func (s *Sink) Enabled() bool { return s != nil && s.url != "" }

func toPayload(leads []*leadsDomain.Lead) payload {
	p := payload{Leads: make([]LeadPayload, 0, len(leads)), Count: len(leads)}
	for _, l := range leads {
		p.Leads = append(p.Leads, LeadPayload{
			ID:            l.ID,
			BusinessName:  l.BusinessName,
			Phone:         l.Phone,
			Neighborhood:  l.Neighborhood,
			Category:      l.Category,
			Rating:        l.Rating,
			TargetProduct: string(l.TargetProduct),
			CreatedAt:     l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return p
}

// Notify entrega el lote con hasta maxAttempts intentos (2s, 4s, ...).
// Devuelve ErrWebhookDeliveryFailed envuelto cuando se agota el presupuesto.
func (s *Sink) Notify(ctx context.Context, leads []*leadsDomain.Lead) error {
	if !s.Enabled() || len(leads) == 0 {
		return nil
	}

	body := toPayload(leads)
	headers := map[string]string{"X-API-Key": s.apiKey}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err := messaging.JSONRequest(ctx, s.client, s.timeout, http.MethodPost, s.url, headers, body)
		switch {
		case err != nil:
			lastErr = err
		case resp.OK():
			logrus.WithField("count", body.Count).Infof("[LEADSINK] Webhook notified (attempt %d)", attempt)
			return nil
		default:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		}

		if attempt == s.maxAttempts {
			break
		}
		wait := s.backoff << uint(attempt-1)
		logrus.Warnf("[LEADSINK] Attempt %d/%d failed: %v; retrying in %s", attempt, s.maxAttempts, lastErr, wait)
		if err := s.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	err := fmt.Errorf("%w: %d leads: %v", dispatchDomain.ErrWebhookDeliveryFailed, len(leads), lastErr)
	logrus.Error("[LEADSINK] " + err.Error())
	return err
}
