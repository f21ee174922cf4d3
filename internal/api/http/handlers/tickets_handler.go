package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler serves ticket endpoints for users and staff alike; the
// service applies role scoping.
type TicketsHandler struct {
	service       *service.TicketService
	blobs         storage.BlobStore
	validate      *validator.Validate
	maxUploadSize int64
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, blobs storage.BlobStore, validate *validator.Validate, maxUploadSize int64) *TicketsHandler {
	return &TicketsHandler{service: ticketService, blobs: blobs, validate: validate, maxUploadSize: maxUploadSize}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), identity, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	if pageSize > 200 {
		pageSize = 200
	}
	filter := service.TicketListFilter{
		Statuses:      splitQuery[domain.TicketStatus](c, "status"),
		Priorities:    splitQuery[domain.TicketPriority](c, "priority"),
		Categories:    splitQuery[domain.TicketCategory](c, "category"),
		AssignedRoles: splitQuery[domain.AssignedRole](c, "assignedRole"),
		Mine:          c.QueryBool("mine", false),
		Limit:         pageSize,
		Offset:        (page - 1) * pageSize,
	}
	tickets, err := h.service.ListTickets(c.UserContext(), identity, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// AddResponse POST /api/tickets/:id/responses. Accepts JSON or multipart
// with an optional "file" part.
func (h *TicketsHandler) AddResponse(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ticketID := c.Params("id")
	var req dto.CreateResponseRequest
	var attachment *domain.Attachment
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req.Text = c.FormValue("text")
		if err := validate(h.validate, &req); err != nil {
			return err
		}
		attachment, err = h.storeUpload(c, identity, ticketID)
		if err != nil {
			return err
		}
	} else if err := bind(c, h.validate, &req); err != nil {
		return err
	}

	resp, err := h.service.AddResponse(c.UserContext(), identity, ticketID, req.Text, attachment)
	if err != nil {
		if attachment != nil {
			_ = h.blobs.Remove(context.WithoutCancel(c.UserContext()), *attachment)
		}
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ResponseResponse{
		ID:         resp.ID,
		Text:       resp.Text,
		Attachment: resp.Attachment,
		Author:     dto.UserRef{ID: identity.UserID, Name: identity.Name},
		CreatedAt:  resp.CreatedAt,
	}})
}

// storeUpload writes the optional "file" part once the actor is known to be
// allowed to respond, so rejected requests leave nothing on disk.
func (h *TicketsHandler) storeUpload(c *fiber.Ctx, identity domain.Identity, ticketID string) (*domain.Attachment, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil
	}
	if err := h.service.AuthorizeResponse(c.UserContext(), identity, ticketID); err != nil {
		return nil, err
	}
	if h.blobs == nil {
		return nil, apperrors.NewValidationError("attachments are disabled", nil)
	}
	if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
		return nil, apperrors.NewValidationError("attachment too large", map[string]any{"maxBytes": h.maxUploadSize})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable attachment", nil)
	}
	defer f.Close()

	att, err := h.blobs.Store(c.UserContext(), f, fh.Filename)
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	changes, ticket, err := h.service.UpdateTicket(c.UserContext(), identity, c.Params("id"), service.TicketUpdateInput{
		Status:       req.Status,
		Priority:     req.Priority,
		AssignedRole: req.AssignedRole,
		AssignedTo:   req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(ticket, changes)})
}

// AssignTicket POST /api/tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	changes, ticket, err := h.service.AssignTicket(c.UserContext(), identity, c.Params("id"), strings.TrimSpace(req.AssignedTo), req.AssignedRole)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(ticket, changes)})
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), identity, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func changeResponse(ticket *domain.Ticket, changes domain.ChangeSet) dto.ChangeResponse {
	if changes == nil {
		changes = domain.ChangeSet{}
	}
	return dto.ChangeResponse{Ticket: ticketSummary(ticket), Changes: changes}
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		Category:     ticket.Category,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		AssignedRole: ticket.AssignedRole,
		CreatedBy:    ticket.CreatedBy,
		AssignedTo:   ticket.AssignedTo,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		ResolvedAt:   ticket.ResolvedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	ticket := detail.Ticket
	ref := func(id string) dto.UserRef {
		name, ok := detail.Names[id]
		if !ok {
			name = "Unknown"
		}
		return dto.UserRef{ID: id, Name: name}
	}

	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Creator:       ref(ticket.CreatedBy),
		Responses:     make([]dto.ResponseResponse, 0, len(ticket.Responses)),
		Activities:    make([]dto.ActivityResponse, 0, len(ticket.Activities)),
	}
	if ticket.AssignedTo != nil {
		assignee := ref(*ticket.AssignedTo)
		resp.Assignee = &assignee
	}
	for _, r := range ticket.Responses {
		resp.Responses = append(resp.Responses, dto.ResponseResponse{
			ID:         r.ID,
			Text:       r.Text,
			Attachment: r.Attachment,
			Author:     ref(r.AuthorID),
			CreatedAt:  r.CreatedAt,
		})
	}
	for _, a := range ticket.Activities {
		resp.Activities = append(resp.Activities, dto.ActivityResponse{
			ID:        a.ID,
			Action:    a.Action,
			Actor:     ref(a.ActorID),
			Message:   a.Message,
			Timestamp: a.Timestamp,
		})
	}
	return resp
}
