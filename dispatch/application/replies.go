package application

import (
	"context"
	"fmt"

	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/sirupsen/logrus"
)

// ReplyHandler marca Hot el lead que respondió
type ReplyHandler struct {
	repo leadsDomain.LeadRepository
}

func NewReplyHandler(repo leadsDomain.LeadRepository) *ReplyHandler {
	return &ReplyHandler{repo: repo}
}

// HandleReply normaliza el teléfono y aplica Sent → Hot. Cero filas es normal
// (número fuera del sistema o webhook repetido).
func (h *ReplyHandler) HandleReply(ctx context.Context, rawPhone string) (int64, error) {
	phone, err := leadsDomain.ParsePhoneNumber(rawPhone)
	if err != nil {
		return 0, fmt.Errorf("reply from %q: %w", rawPhone, err)
	}

	n, err := h.repo.MarkHot(ctx, phone)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.WithField("phone", phone.String()).Infof("[INBOUND] Lead replied, %d marked Hot", n)
	} else {
		logrus.WithField("phone", phone.String()).Debug("[INBOUND] Reply did not match a Sent lead")
	}
	return n, nil
}
