package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

const backendName = "whatsmeow"

// waClient es el subconjunto de *whatsmeow.Client que usa el sender
type waClient interface {
	IsConnected() bool
	IsLoggedIn() bool
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Sender envía directamente por la sesión multi-device
type Sender struct {
	client  waClient
	timeout time.Duration
	retry   messaging.RetryPolicy
}

func NewSender(client waClient, timeout time.Duration, retry messaging.RetryPolicy) *Sender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Sender{client: client, timeout: timeout, retry: retry}
}

func (s *Sender) Name() string { return backendName }

// Validate pregunta a WhatsApp si el número tiene cuenta
func (s *Sender) Validate(ctx context.Context, phone leadsDomain.PhoneNumber) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phone.String()})
	if err != nil {
		logrus.WithField("phone", phone.String()).Warnf("[WHATSMEOW] Number check failed: %v", err)
		return false, fmt.Errorf("%w: %v", dispatchDomain.ErrNumberCheckUnavailable, err)
	}
	for _, res := range resp {
		if res.IsIn {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sender) Send(ctx context.Context, phone leadsDomain.PhoneNumber, msg dispatchDomain.Message) dispatchDomain.Outcome {
	jid := types.NewJID(phone.String(), types.DefaultUserServer)
	payload := &waE2E.Message{Conversation: proto.String(msg.Pitch.Text)}

	out := s.retry.Do(ctx, backendName, func(ctx context.Context, n int) dispatchDomain.Outcome {
		if !s.client.IsConnected() {
			return dispatchDomain.TransientOutcome("client not connected")
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.SendMessage(attemptCtx, jid, payload)
		if err != nil {
			return classifyError(err)
		}
		return dispatchDomain.DeliveredOutcome(resp.ID)
	})

	logrus.WithFields(logrus.Fields{
		"lead_id":  msg.LeadID,
		"phone":    phone.String(),
		"outcome":  out.Kind.String(),
		"attempts": out.Attempts,
	}).Debug("[WHATSMEOW] Send finished")
	return out
}

func classifyError(err error) dispatchDomain.Outcome {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "rate-overlimit"), strings.Contains(text, "429"):
		return dispatchDomain.RateLimitedOutcome(0, err.Error())
	case strings.Contains(text, "not on whatsapp"), strings.Contains(text, "no signal session"),
		strings.Contains(text, "invalid jid"), strings.Contains(text, "no lid"):
		return dispatchDomain.NonRetryableOutcome(err.Error())
	default:
		return messaging.TransportFailure(err)
	}
}

func (s *Sender) CheckSession(_ context.Context) dispatchDomain.SessionStatus {
	status := dispatchDomain.SessionStatus{
		Backend:   backendName,
		Connected: s.client.IsConnected() && s.client.IsLoggedIn(),
	}
	switch {
	case !s.client.IsConnected():
		status.Detail = "disconnected"
	case !s.client.IsLoggedIn():
		status.Detail = "not logged in, scan the QR code"
	default:
		status.Detail = "ready"
	}
	if c, ok := s.client.(*whatsmeow.Client); ok && c.Store != nil && c.Store.ID != nil {
		status.Account = c.Store.ID.ToNonAD().String()
	}
	return status
}
