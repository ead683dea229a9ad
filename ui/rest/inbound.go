package rest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/AzielCF/az-prospector/pkg/msgworker"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ReplyHandler es el caso de uso Sent → Hot
type ReplyHandler interface {
	HandleReply(ctx context.Context, rawPhone string) (int64, error)
}

// Inbound recibe los webhooks del proveedor de mensajería
type Inbound struct {
	replies     ReplyHandler
	pool        *msgworker.Pool
	verifyToken string
}

// InitRestInbound registra /webhooks/whatsapp. Con pool las respuestas se procesan en
// segundo plano (una cola por teléfono); sin pool, dentro de la petición.
func InitRestInbound(app fiber.Router, replies ReplyHandler, pool *msgworker.Pool, verifyToken string) *Inbound {
	h := &Inbound{replies: replies, pool: pool, verifyToken: verifyToken}
	app.Get("/webhooks/whatsapp", h.Verify)
	app.Post("/webhooks/whatsapp", h.Receive)
	return h
}

// Verify responde el handshake de suscripción (hub.challenge)
func (h *Inbound) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		logrus.Info("[INBOUND] Webhook verified")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}
	logrus.Warn("[INBOUND] Webhook verification failed")
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "verification failed"})
}

// Receive extrae los remitentes y aplica HandleReply a cada uno
func (h *Inbound) Receive(c *fiber.Ctx) error {
	phones, err := extractSenders(c.Body())
	if err != nil {
		logrus.WithError(err).Warn("[INBOUND] Unreadable webhook payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	for _, raw := range phones {
		phone := raw
		if h.pool == nil {
			h.handle(c.UserContext(), phone)
			continue
		}
		ok := h.pool.TryDispatch(msgworker.Job{
			Key: phone,
			Handler: func(ctx context.Context) error {
				h.handle(ctx, phone)
				return nil
			},
		})
		if !ok {
			// el proveedor reintenta la entrega; MarkHot es idempotente
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "inbound queue full"})
		}
	}

	return c.JSON(fiber.Map{"status": "ok", "count": len(phones)})
}

func (h *Inbound) handle(ctx context.Context, rawPhone string) {
	if _, err := h.replies.HandleReply(ctx, rawPhone); err != nil {
		logrus.WithError(err).WithField("phone", rawPhone).Warn("[INBOUND] Reply not applied")
	}
}

type cloudPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type wahaPayload struct {
	Event   string `json:"event"`
	Payload struct {
		From   string `json:"from"`
		FromMe bool   `json:"fromMe"`
	} `json:"payload"`
}

// extractSenders reconoce el formato de la Cloud API (entry[].changes[].value.messages[].from)
// y el de WAHA ({"event":"message","payload":{"from":...}}). Los status updates no traen remitentes.
func extractSenders(body []byte) ([]string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}

	if _, ok := probe["entry"]; ok {
		var p cloudPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, err
		}
		var phones []string
		for _, e := range p.Entry {
			for _, ch := range e.Changes {
				for _, m := range ch.Value.Messages {
					if m.From != "" {
						phones = append(phones, m.From)
					}
				}
			}
		}
		return phones, nil
	}

	if _, ok := probe["event"]; ok {
		var p wahaPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, err
		}
		if (p.Event != "message" && p.Event != "message.any") || p.Payload.FromMe || p.Payload.From == "" {
			return nil, nil
		}
		if strings.HasSuffix(p.Payload.From, "@g.us") || strings.HasSuffix(p.Payload.From, "@broadcast") {
			return nil, nil
		}
		return []string{p.Payload.From}, nil
	}

	return nil, nil
}
