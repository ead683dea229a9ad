package validations

import (
	"context"
	"strings"

	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidateNewLead checks producer input and normalizes the phone in place.
// A malformed phone is dropped instead of rejecting the lead: the row is kept
// for manual enrichment and simply never becomes eligible.
func ValidateNewLead(ctx context.Context, request *leadsDomain.NewLead) error {
	request.BusinessName = strings.TrimSpace(request.BusinessName)
	request.Category = strings.TrimSpace(request.Category)

	err := validation.ValidateStructWithContext(ctx, request,
		validation.Field(&request.BusinessName, validation.Required, validation.Length(1, 255)),
		validation.Field(&request.Category, validation.Required, validation.Length(1, 120)),
		validation.Field(&request.TargetProduct, validation.Required, validation.In(productValues()...)),
		validation.Field(&request.Neighborhood, validation.Length(0, 120)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if request.Phone != "" {
		phone, perr := leadsDomain.ParsePhoneNumber(request.Phone)
		if perr != nil {
			request.Phone = ""
		} else {
			request.Phone = phone.String()
		}
	}

	return nil
}

// ValidateStatusReset only allows the operator recovery moves.
func ValidateStatusReset(from, to leadsDomain.LeadStatus) error {
	allowed := map[leadsDomain.LeadStatus][]leadsDomain.LeadStatus{
		leadsDomain.StatusFailed: {leadsDomain.StatusSent, leadsDomain.StatusPending},
	}
	for _, candidate := range allowed[from] {
		if candidate == to {
			return nil
		}
	}
	return pkgError.ValidationError("status reset " + string(from) + " -> " + string(to) + " is not allowed")
}

func productValues() []interface{} {
	out := make([]interface{}, 0, len(leadsDomain.Products))
	for _, p := range leadsDomain.Products {
		out = append(out, p)
	}
	return out
}
