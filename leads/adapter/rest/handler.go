package rest

import (
	"errors"
	"strconv"

	"github.com/AzielCF/az-prospector/leads/application"
	"github.com/AzielCF/az-prospector/leads/domain"
	pkgError "github.com/AzielCF/az-prospector/pkg/error"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

// LeadHandler maneja las peticiones REST de leads (productor y operador)
type LeadHandler struct {
	service *application.LeadService
}

// NewLeadHandler crea una nueva instancia del handler
func NewLeadHandler(service *application.LeadService) *LeadHandler {
	return &LeadHandler{service: service}
}

// RegisterRoutes registra las rutas de leads en el router de Fiber
func (h *LeadHandler) RegisterRoutes(router fiber.Router) {
	leads := router.Group("/leads")

	leads.Get("/", h.ListLeads)
	leads.Post("/", h.CreateLead)
	leads.Delete("/", h.ClearLeads)
	leads.Get("/stats", h.GetStats)
	leads.Post("/reset-status", h.ResetStatus)
	leads.Get("/:id", h.GetLead)
	leads.Post("/:id/convert", h.ConvertLead)
}

// ListLeads lista leads con filtros
func (h *LeadHandler) ListLeads(c *fiber.Ctx) error {
	filter := domain.LeadFilter{
		Category:     c.Query("category"),
		Neighborhood: c.Query("neighborhood"),
		Limit:        c.QueryInt("limit", 0),
		Offset:       c.QueryInt("offset", 0),
	}

	if status := c.Query("status"); status != "" {
		st := domain.LeadStatus(status)
		if !st.IsValid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status " + status})
		}
		filter.Status = &st
	}
	if product := c.Query("target_product"); product != "" {
		p, ok := domain.ParseProduct(product)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown product " + product})
		}
		filter.TargetProduct = &p
	}
	if hasPhone := c.Query("has_phone"); hasPhone != "" {
		v := c.QueryBool("has_phone")
		filter.HasPhone = &v
	}

	leads, err := h.service.List(c.Context(), filter)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"data": toLeadResponses(leads), "count": len(leads)})
}

// CreateLead recibe un lead del productor; duplicados responden 200 sin crear
func (h *LeadHandler) CreateLead(c *fiber.Ctx) error {
	var req CreateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	lead, inserted, err := h.service.InsertIfAbsent(c.Context(), req.toDomain())
	if err != nil {
		return errorResponse(c, err)
	}
	if !inserted {
		return c.JSON(fiber.Map{"inserted": false})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"inserted": true, "data": toLeadResponse(lead)})
}

// GetLead obtiene un lead por ID
func (h *LeadHandler) GetLead(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	lead, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(toLeadResponse(lead))
}

// GetStats obtiene los conteos por estado y producto
func (h *LeadHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"data":          stats,
		"total_display": humanize.Comma(stats.Total),
	})
}

// ClearLeads borra todos los leads; exige confirm=true
func (h *LeadHandler) ClearLeads(c *fiber.Ctx) error {
	if !c.QueryBool("confirm") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "confirm=true is required"})
	}
	deleted, err := h.service.ClearAll(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

// ResetStatus aplica el override manual (por defecto Failed -> Sent)
func (h *LeadHandler) ResetStatus(c *fiber.Ctx) error {
	from := domain.LeadStatus(c.Query("from", string(domain.StatusFailed)))
	to := domain.LeadStatus(c.Query("to", string(domain.StatusSent)))

	updated, err := h.service.ResetStatus(c.Context(), from, to)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated, "from": from, "to": to})
}

// ConvertLead marca un lead Hot como Converted
func (h *LeadHandler) ConvertLead(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.MarkConverted(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": domain.StatusConverted})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid lead id")
	}
	return id, nil
}

func errorResponse(c *fiber.Ctx, err error) error {
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return c.Status(generic.StatusCode()).JSON(fiber.Map{"error": generic.Error(), "code": generic.ErrCode()})
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
