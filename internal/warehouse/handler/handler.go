package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"freightdesk/internal/warehouse/manifest"
	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/httputil"
	"freightdesk/pkg/requestcontext"
)

// Service defines the warehouse operations exposed over HTTP.
type Service interface {
	CreateContainer(ctx context.Context, req models.CreateContainerRequest) (*models.ContainerView, error)
	DeleteContainer(ctx context.Context, containerID id.ContainerID) ([]id.InvoiceID, error)
	PrecheckClose(ctx context.Context, containerID id.ContainerID) (*models.ClosePrecheck, error)
	CloseContainer(ctx context.Context, containerID id.ContainerID, req models.CloseContainerRequest) (*models.ContainerView, error)
	DepartContainer(ctx context.Context, containerID id.ContainerID) (*models.ContainerView, error)
	ConfirmReceipt(ctx context.Context, containerID id.ContainerID, req models.ConfirmReceiptRequest) (*models.ContainerView, error)
	PrecheckWorked(ctx context.Context, containerID id.ContainerID) (*models.WorkedPrecheck, error)
	MarkWorked(ctx context.Context, containerID id.ContainerID, req models.MarkWorkedRequest) (*models.ContainerView, error)

	AddInvoice(ctx context.Context, containerID id.ContainerID, invoiceID id.InvoiceID) (*models.InvoiceView, error)
	RemoveInvoice(ctx context.Context, containerID id.ContainerID, invoiceID id.InvoiceID) (*models.InvoiceView, error)
	MarkItem(ctx context.Context, invoiceID id.InvoiceID, req models.MarkItemRequest) (*models.InvoiceView, error)
	MarkDamaged(ctx context.Context, invoiceID id.InvoiceID, req models.MarkDamagedRequest) (*models.InvoiceView, error)
	ReportIncomplete(ctx context.Context, invoiceID id.InvoiceID, req models.ReportIncompleteRequest) (*models.InvoiceView, error)
	AssignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (*models.InvoiceView, error)
	ReassignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (*models.InvoiceView, error)
	UnassignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (*models.InvoiceView, error)
	SetPayment(ctx context.Context, invoiceID id.InvoiceID, req models.SetPaymentRequest) (*models.InvoiceView, error)

	GetContainer(ctx context.Context, containerID id.ContainerID) (*models.ContainerView, error)
	ListActiveContainers(ctx context.Context) ([]*models.ContainerView, error)
	ListHistoryContainers(ctx context.Context) ([]*models.ContainerView, error)
	GetInvoiceDetail(ctx context.Context, invoiceID id.InvoiceID) (*models.InvoiceView, error)
}

// Handler wires warehouse endpoints to the warehouse service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the floor and office endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/containers", func(r chi.Router) {
		r.Post("/", h.HandleCreateContainer)
		r.Get("/", h.HandleListContainers)
		r.Route("/{containerID}", func(r chi.Router) {
			r.Get("/", h.HandleGetContainer)
			r.Get("/precheck-close", h.HandlePrecheckClose)
			r.Post("/close", h.HandleCloseContainer)
			r.Post("/depart", h.HandleDepartContainer)
			r.Post("/receive", h.HandleConfirmReceipt)
			r.Get("/precheck-worked", h.HandlePrecheckWorked)
			r.Post("/worked", h.HandleMarkWorked)
			r.Post("/invoices/{invoiceID}", h.HandleAddInvoice)
			r.Delete("/invoices/{invoiceID}", h.HandleRemoveInvoice)
			r.Get("/manifest.pdf", h.HandleManifest)
			r.Get("/label.png", h.HandleLabel)
		})
	})
	r.Route("/invoices/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.HandleGetInvoice)
		r.Post("/items/mark", h.HandleMarkItem)
		r.Post("/items/damage", h.HandleMarkDamaged)
		r.Post("/incomplete", h.HandleReportIncomplete)
		r.Post("/route", h.HandleAssignRoute)
		r.Post("/route/reassign", h.HandleReassignRoute)
		r.Post("/route/unassign", h.HandleUnassignRoute)
		r.Patch("/payment", h.HandleSetPayment)
	})
}

// RegisterAdmin mounts destructive endpoints under /admin, guarded by the
// given middlewares.
func (h *Handler) RegisterAdmin(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(guards...)
		r.Delete("/containers/{containerID}", h.HandleDeleteContainer)
	})
}

// HandleCreateContainer handles POST /containers.
func (h *Handler) HandleCreateContainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[models.CreateContainerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	view, err := h.service.CreateContainer(ctx, *req)
	if err != nil {
		h.fail(w, r, "create container failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

// HandleListContainers handles GET /containers?view=active|history.
func (h *Handler) HandleListContainers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		views []*models.ContainerView
		err   error
	)
	switch r.URL.Query().Get("view") {
	case "", "active":
		views, err = h.service.ListActiveContainers(ctx)
	case "history":
		views, err = h.service.ListHistoryContainers(ctx)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "view must be active or history")
	}
	if err != nil {
		h.fail(w, r, "list containers failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ContainerListResponse{Containers: views})
}

// HandleGetContainer handles GET /containers/{containerID}.
func (h *Handler) HandleGetContainer(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetContainer(r.Context(), containerID)
	if err != nil {
		h.fail(w, r, "get container failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleDeleteContainer handles DELETE /admin/containers/{containerID}.
func (h *Handler) HandleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	released, err := h.service.DeleteContainer(r.Context(), containerID)
	if err != nil {
		h.fail(w, r, "delete container failed", err)
		return
	}
	if released == nil {
		released = []id.InvoiceID{}
	}
	httputil.WriteJSON(w, http.StatusOK, &DeleteContainerResponse{ContainerID: containerID, Released: released})
}

func (h *Handler) HandlePrecheckClose(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	result, err := h.service.PrecheckClose(r.Context(), containerID)
	if err != nil {
		h.fail(w, r, "close precheck failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCloseContainer handles POST /containers/{containerID}/close. A refused
// close answers 409 with the blocking invoices in details.
func (h *Handler) HandleCloseContainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CloseContainerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.CloseContainer(ctx, containerID, *req)
	if err != nil {
		h.fail(w, r, "close container failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleDepartContainer(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	view, err := h.service.DepartContainer(r.Context(), containerID)
	if err != nil {
		h.fail(w, r, "depart container failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ConfirmReceiptRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.ConfirmReceipt(ctx, containerID, *req)
	if err != nil {
		h.fail(w, r, "confirm receipt failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandlePrecheckWorked(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	result, err := h.service.PrecheckWorked(r.Context(), containerID)
	if err != nil {
		h.fail(w, r, "worked precheck failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleMarkWorked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.MarkWorkedRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.MarkWorked(ctx, containerID, *req)
	if err != nil {
		h.fail(w, r, "mark worked failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleAddInvoice handles POST /containers/{containerID}/invoices/{invoiceID}.
func (h *Handler) HandleAddInvoice(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	invoiceID, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	view, err := h.service.AddInvoice(r.Context(), containerID, invoiceID)
	if err != nil {
		h.fail(w, r, "add invoice failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleRemoveInvoice(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	invoiceID, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	view, err := h.service.RemoveInvoice(r.Context(), containerID, invoiceID)
	if err != nil {
		h.fail(w, r, "remove invoice failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleManifest renders the printable container manifest.
func (h *Handler) HandleManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetContainer(ctx, containerID)
	if err != nil {
		h.fail(w, r, "get container for manifest failed", err)
		return
	}
	pdf, err := manifest.Render(view, requestcontext.Now(ctx))
	if err != nil {
		h.fail(w, r, "render manifest failed", err)
		return
	}
	w.Header().Set("Content-Disposition", `inline; filename="manifest-`+view.Code+`.pdf"`)
	writeBytes(w, "application/pdf", pdf)
}

// HandleLabel renders the container QR label.
func (h *Handler) HandleLabel(w http.ResponseWriter, r *http.Request) {
	containerID, ok := h.containerID(w, r)
	if !ok {
		return
	}
	// the label is only printed for containers that exist
	if _, err := h.service.GetContainer(r.Context(), containerID); err != nil {
		h.fail(w, r, "get container for label failed", err)
		return
	}
	png, err := manifest.Label(containerID)
	if err != nil {
		h.fail(w, r, "render label failed", err)
		return
	}
	writeBytes(w, "image/png", png)
}

// HandleGetInvoice handles GET /invoices/{invoiceID}.
func (h *Handler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetInvoiceDetail(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, r, "get invoice failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleMarkItem(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "mark item failed", h.service.MarkItem)
}

func (h *Handler) HandleMarkDamaged(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "mark damaged failed", h.service.MarkDamaged)
}

func (h *Handler) HandleReportIncomplete(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "report incomplete failed", h.service.ReportIncomplete)
}

func (h *Handler) HandleAssignRoute(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "assign route failed", h.service.AssignRoute)
}

func (h *Handler) HandleReassignRoute(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "reassign route failed", h.service.ReassignRoute)
}

func (h *Handler) HandleUnassignRoute(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "unassign route failed", h.service.UnassignRoute)
}

// HandleSetPayment handles PATCH /invoices/{invoiceID}/payment. Fields absent
// from the body are left unchanged.
func (h *Handler) HandleSetPayment(w http.ResponseWriter, r *http.Request) {
	invoiceAction(h, w, r, "set payment failed", h.service.SetPayment)
}

// invoiceAction decodes a T body and applies it to the invoice in the path.
func invoiceAction[T any](h *Handler, w http.ResponseWriter, r *http.Request, failure string,
	apply func(context.Context, id.InvoiceID, T) (*models.InvoiceView, error)) {
	ctx := r.Context()
	invoiceID, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[T](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := apply(ctx, invoiceID, *req)
	if err != nil {
		h.fail(w, r, failure, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) containerID(w http.ResponseWriter, r *http.Request) (id.ContainerID, bool) {
	containerID, err := id.ParseContainerID(chi.URLParam(r, "containerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ContainerID{}, false
	}
	return containerID, true
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (id.InvoiceID, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "invoiceID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid invoice id encoding"))
		return "", false
	}
	invoiceID, err := id.ParseInvoiceID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return invoiceID, true
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if de, ok := dErrors.As(err); !ok || de.Code == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func writeBytes(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
