package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artisan-market/api/internal/platform/auth"
	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/platform/idempotency"
	"github.com/artisan-market/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes checkout, order listing and admin processing endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	intake    services.OrderIntakeService
	query     services.OrderQueryService
	processor services.OrderProcessorService
	profiles  services.ProfileService
	reports   *ReportHandlers
	dedupe    func(http.Handler) http.Handler
}

// OrderHandlersDeps bundles the services behind the /orders routes.
type OrderHandlersDeps struct {
	Authenticator *auth.Authenticator
	Intake        services.OrderIntakeService
	Query         services.OrderQueryService
	Processor     services.OrderProcessorService
	Profiles      services.ProfileService
	Reports       services.ReportService
	// Submissions replays order placements that repeat an Idempotency-Key.
	Submissions idempotency.Store
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	h := &OrderHandlers{
		authn:     deps.Authenticator,
		intake:    deps.Intake,
		query:     deps.Query,
		processor: deps.Processor,
		profiles:  deps.Profiles,
		dedupe:    idempotency.Middleware(deps.Submissions),
	}
	if deps.Reports != nil {
		h.reports = NewReportHandlers(deps.Reports)
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.With(h.dedupe).Post("/", h.placeOrder)
	r.Get("/my-orders", h.listMyOrders)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAdmin())
		}
		admin.Get("/", h.listActiveOrders)
		admin.Post("/{orderId}/process", h.processOrder)
		if h.reports != nil {
			admin.Get("/reports", h.reports.listReports)
			admin.Get("/reports/{filename}", h.reports.downloadReport)
		}
	})
}

type orderItemRequest struct {
	ProductID      string `json:"productId"`
	ProductIDSnake string `json:"product_id"`
	Quantity       int    `json:"quantity"`
}

type placeOrderEnvelope struct {
	Items []orderItemRequest `json:"items"`
}

type placeOrderResponse struct {
	Status   string   `json:"status"`
	OrderIDs []string `json:"orderIds"`
}

type processOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

type customerOrderPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Quantity  int    `json:"quantity"`
	ItemTotal int64  `json:"itemTotal"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type adminOrderPayload struct {
	ID              string `json:"id"`
	CheckoutID      string `json:"checkoutId,omitempty"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName"`
	ProductCategory string `json:"productCategory"`
	ProductPrice    int64  `json:"productPrice"`
	Quantity        int    `json:"quantity"`
	ItemTotal       int64  `json:"itemTotal"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerName    string `json:"customerName"`
	PhoneNumber     string `json:"phoneNumber"`
	DeliveryAddress string `json:"deliveryAddress"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.intake == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	items, err := decodeOrderItems(r.Body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if h.profiles != nil {
		if _, err := h.profiles.EnsureProfile(ctx, profileIdentity(identity)); err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}

	result, err := h.intake.PlaceOrder(ctx, services.PlaceOrderCommand{
		Customer: services.CustomerRef{Email: identity.Email, Name: identity.Name},
		Items:    items,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, placeOrderResponse{Status: "ordered", OrderIDs: result.OrderIDs()})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	views, err := h.query.ListCustomerOrders(ctx, identity.Email)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]customerOrderPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, customerOrderPayload{
			ID:        view.Order.ID,
			ProductID: view.Order.ProductID,
			Name:      view.Name,
			Price:     view.Price,
			ImageURL:  view.ImageURL,
			Quantity:  view.Order.Quantity,
			ItemTotal: view.Order.ItemTotal,
			Status:    string(view.Order.Status),
			CreatedAt: formatTime(view.Order.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) listActiveOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireAdminIdentity(w, r); !ok {
		return
	}

	orders, err := h.query.ListActiveOrders(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]adminOrderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, adminOrderPayload{
			ID:              order.ID,
			CheckoutID:      order.CheckoutID,
			ProductID:       order.ProductID,
			ProductName:     order.ProductName,
			ProductCategory: order.ProductCategory,
			ProductPrice:    order.ProductPrice,
			Quantity:        order.Quantity,
			ItemTotal:       order.ItemTotal,
			CustomerEmail:   order.CustomerEmail,
			CustomerName:    order.CustomerName,
			PhoneNumber:     order.PhoneNumber,
			DeliveryAddress: order.DeliveryAddress,
			City:            order.City,
			State:           order.State,
			Pincode:         order.Pincode,
			Status:          string(order.Status),
			CreatedAt:       formatTime(order.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) processOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.processor == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireAdminIdentity(w, r); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	record, err := h.processor.ProcessOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, processOrderResponse{Status: "processed", OrderID: record.OrderID()})
}

// decodeOrderItems accepts either a bare array of items or an {"items": [...]} envelope.
func decodeOrderItems(body io.Reader) ([]services.LineItem, error) {
	if body == nil {
		return nil, errors.New("request body is required")
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxOrderBodySize+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(raw) > maxOrderBodySize {
		return nil, errors.New("request body too large")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("request body is required")
	}

	var items []orderItemRequest
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.New("invalid JSON payload")
		}
	} else {
		var envelope placeOrderEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, errors.New("invalid JSON payload")
		}
		items = envelope.Items
	}
	if len(items) == 0 {
		return nil, errors.New("at least one item is required")
	}

	out := make([]services.LineItem, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			productID = strings.TrimSpace(item.ProductIDSnake)
		}
		out = append(out, services.LineItem{ProductID: productID, Quantity: item.Quantity})
	}
	return out, nil
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Email) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func requireAdminIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return nil, false
	}
	if !identity.IsAdmin() {
		httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "administrator access required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func profileIdentity(identity *auth.Identity) services.ProfileIdentity {
	role := auth.RoleUser
	if identity.IsAdmin() {
		role = auth.RoleAdmin
	}
	return services.ProfileIdentity{Email: identity.Email, Name: identity.Name, Role: role}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
