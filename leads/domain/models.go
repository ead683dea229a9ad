package domain

import (
	"strings"
	"time"
)

// LeadStatus representa la etapa de un lead dentro del embudo de prospección
type LeadStatus string

const (
	StatusPending   LeadStatus = "Pending"
	StatusSent      LeadStatus = "Sent"
	StatusHot       LeadStatus = "Hot"
	StatusCold      LeadStatus = "Cold"
	StatusConverted LeadStatus = "Converted"
	StatusFailed    LeadStatus = "Failed"
)

// AllStatuses en el orden en que se reportan en las estadísticas
var AllStatuses = []LeadStatus{StatusPending, StatusSent, StatusHot, StatusCold, StatusConverted, StatusFailed}

// ContactedStatuses son los estados que bloquean cualquier nuevo contacto al mismo teléfono
var ContactedStatuses = []LeadStatus{StatusSent, StatusHot, StatusCold, StatusConverted}

var transitions = map[LeadStatus][]LeadStatus{
	StatusPending: {StatusSent, StatusFailed},
	StatusSent:    {StatusHot, StatusCold},
	StatusHot:     {StatusConverted},
}

// CanTransition indica si el flujo automático permite pasar de from a to
func CanTransition(from, to LeadStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid valida que el estado sea uno de los conocidos
func (s LeadStatus) IsValid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal indica si el flujo automático ya no mueve este estado
func (s LeadStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Product es la oferta comercial a la que pertenece un lead
type Product string

const (
	ProductZappy  Product = "Zappy"  // delivery de comida
	ProductLojaky Product = "Lojaky" // comercio minorista
)

// Products disponibles, en orden de presentación
var Products = []Product{ProductZappy, ProductLojaky}

// ParseProduct acepta el nombre del producto o el modo ("zappy", "lojaky") sin importar mayúsculas
func ParseProduct(raw string) (Product, bool) {
	for _, p := range Products {
		if strings.EqualFold(string(p), strings.TrimSpace(raw)) {
			return p, true
		}
	}
	return "", false
}

// Mode devuelve el identificador en minúsculas usado en la configuración
func (p Product) Mode() string {
	switch p {
	case ProductZappy:
		return "zappy"
	case ProductLojaky:
		return "lojaky"
	}
	return ""
}

// Lead representa un negocio prospectado y su estado de contacto
type Lead struct {
	ID              int64      `json:"id"`
	BusinessName    string     `json:"business_name"`
	Category        string     `json:"category"`
	Phone           string     `json:"phone,omitempty"` // dígitos canónicos, ver PhoneNumber
	Neighborhood    string     `json:"neighborhood,omitempty"`
	Rating          string     `json:"rating,omitempty"`
	TargetProduct   Product    `json:"target_product"`
	Status          LeadStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	SendAttemptedAt *time.Time `json:"send_attempted_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasPhone indica si el lead puede ser contactado
func (l *Lead) HasPhone() bool {
	return l != nil && l.Phone != ""
}

// NewLead son los datos que entrega el productor de leads (scraper u operador)
type NewLead struct {
	BusinessName  string  `json:"business_name"`
	Category      string  `json:"category"`
	Phone         string  `json:"phone,omitempty"`
	Neighborhood  string  `json:"neighborhood,omitempty"`
	Rating        string  `json:"rating,omitempty"`
	TargetProduct Product `json:"target_product"`
}

// LeadStats agrupa los conteos expuestos al operador
type LeadStats struct {
	Total         int64                `json:"total"`
	ByStatus      map[LeadStatus]int64 `json:"by_status"`
	ByProduct     map[Product]int64    `json:"by_product"`
	Categories    int64                `json:"categories"`
	Neighborhoods int64                `json:"neighborhoods"`
}
