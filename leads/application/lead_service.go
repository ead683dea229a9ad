package application

import (
	"context"

	"github.com/AzielCF/az-prospector/leads/domain"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	"github.com/AzielCF/az-prospector/validations"
	"github.com/sirupsen/logrus"
)

// LeadService expone las operaciones del almacén de leads al productor externo y al operador
type LeadService struct {
	repo domain.LeadRepository
}

// NewLeadService crea una nueva instancia de LeadService
func NewLeadService(repo domain.LeadRepository) *LeadService {
	return &LeadService{repo: repo}
}

// InsertIfAbsent valida e inserta un lead; un duplicado (business_name, category) no es error
func (s *LeadService) InsertIfAbsent(ctx context.Context, input domain.NewLead) (*domain.Lead, bool, error) {
	if err := validations.ValidateNewLead(ctx, &input); err != nil {
		return nil, false, err
	}

	lead := &domain.Lead{
		BusinessName:  input.BusinessName,
		Category:      input.Category,
		Phone:         input.Phone,
		Neighborhood:  input.Neighborhood,
		Rating:        input.Rating,
		TargetProduct: input.TargetProduct,
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, lead)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		logrus.WithFields(logrus.Fields{
			"lead_id":  lead.ID,
			"business": lead.BusinessName,
			"product":  lead.TargetProduct,
		}).Debug("[LEADS] Lead stored")
	}
	return lead, inserted, nil
}

// GetByID obtiene un lead por su ID
func (s *LeadService) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err == domain.ErrLeadNotFound {
		return nil, pkgError.NotFoundError(err.Error())
	}
	return lead, err
}

// List obtiene leads con filtros
func (s *LeadService) List(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	return s.repo.List(ctx, filter)
}

// Stats obtiene los conteos para el panel
func (s *LeadService) Stats(ctx context.Context) (*domain.LeadStats, error) {
	return s.repo.Stats(ctx)
}

// ClearAll borra todos los leads. Operación destructiva del operador.
func (s *LeadService) ClearAll(ctx context.Context) (int64, error) {
	deleted, err := s.repo.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	logrus.WithField("deleted", deleted).Warn("[LEADS] All leads cleared by operator")
	return deleted, nil
}

// ResetStatus mueve en bloque todos los leads de un estado a otro (override manual)
func (s *LeadService) ResetStatus(ctx context.Context, from, to domain.LeadStatus) (int64, error) {
	if err := validations.ValidateStatusReset(from, to); err != nil {
		return 0, err
	}
	updated, err := s.repo.ResetStatus(ctx, from, to)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"updated": updated,
	}).Warn("[LEADS] Manual status reset")
	return updated, nil
}

// MarkConverted registra una conversión (Hot -> Converted)
func (s *LeadService) MarkConverted(ctx context.Context, id int64) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	updated, err := s.repo.MarkConverted(ctx, id)
	if err != nil {
		return err
	}
	if updated == 0 {
		return pkgError.ConflictError("lead is not Hot")
	}
	logrus.WithField("lead_id", id).Info("[LEADS] Lead converted")
	return nil
}
