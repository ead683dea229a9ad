package rest

import "github.com/AzielCF/az-prospector/leads/domain"

// CreateLeadRequest es el cuerpo que envía el productor de leads (scraper)
type CreateLeadRequest struct {
	BusinessName  string `json:"business_name"`
	Category      string `json:"category"`
	Phone         string `json:"phone"`
	Neighborhood  string `json:"neighborhood"`
	Rating        string `json:"rating"`
	TargetProduct string `json:"target_product"`
}

func (r CreateLeadRequest) toDomain() domain.NewLead {
	product, ok := domain.ParseProduct(r.TargetProduct)
	if !ok {
		product = domain.Product(r.TargetProduct)
	}
	return domain.NewLead{
		BusinessName:  r.BusinessName,
		Category:      r.Category,
		Phone:         r.Phone,
		Neighborhood:  r.Neighborhood,
		Rating:        r.Rating,
		TargetProduct: product,
	}
}

// LeadResponse agrega el teléfono formateado para el operador
type LeadResponse struct {
	*domain.Lead
	PhoneDisplay string `json:"phone_display,omitempty"`
}

func toLeadResponse(l *domain.Lead) LeadResponse {
	resp := LeadResponse{Lead: l}
	if l.HasPhone() {
		if phone, err := domain.ParsePhoneNumber(l.Phone); err == nil {
			resp.PhoneDisplay = phone.Display()
		}
	}
	return resp
}

func toLeadResponses(leads []*domain.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, toLeadResponse(l))
	}
	return out
}
