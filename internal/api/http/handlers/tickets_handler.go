package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-assist/internal/api/dto"
	"github.com/spec-kit/ticket-assist/internal/auth"
	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/service"
	apperrors "github.com/spec-kit/ticket-assist/pkg/errorutil"
)

// TicketsHandler exposes the ticket controller over HTTP.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": service.MsgTicketProcessing,
		"data":    dto.NewTicketSummary(*ticket),
	})
}

// ListTickets GET /api/tickets?limit=&offset=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	page := service.Page{
		Limit:  c.QueryInt("limit", service.DefaultPageSize),
		Offset: c.QueryInt("offset", 0),
	}
	views, err := h.service.ListTickets(c.UserContext(), principal, page)
	if err != nil {
		return err
	}
	meta := fiber.Map{"limit": page.Limit, "offset": page.Offset, "count": len(views)}

	if !principal.Role.IsElevated() {
		items := make([]dto.TicketSummary, 0, len(views))
		for _, view := range views {
			items = append(items, dto.NewTicketSummary(view.Ticket))
		}
		return c.JSON(fiber.Map{"data": items, "meta": meta})
	}
	items := make([]dto.TicketDetailResponse, 0, len(views))
	for _, view := range views {
		items = append(items, dto.NewTicketDetail(view))
	}
	return c.JSON(fiber.Map{"data": items, "meta": meta})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(*view)})
}

// OpenTicket POST /api/tickets/:id/open.
func (h *TicketsHandler) OpenTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	result, err := h.service.OpenTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	if !result.Triggered {
		return c.Status(http.StatusOK).JSON(fiber.Map{"message": result.Message})
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": result.Message,
		"eventId": result.EventID,
	})
}

// UpdateStatus PATCH /api/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.service.UpdateStatus(c.UserContext(), principal, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(*view)})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.service.AddComment(c.UserContext(), principal, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(*view)})
}

// DecideSuggestion PATCH /api/tickets/:id/comments/:commentId/decision.
func (h *TicketsHandler) DecideSuggestion(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.DecideSuggestion(c.UserContext(), principal, c.Params("id"), c.Params("commentId"), req.Decision)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(*view)})
}

func principalOf(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(out)
}
