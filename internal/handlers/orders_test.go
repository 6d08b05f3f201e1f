package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/platform/auth"
	"github.com/artisan-market/api/internal/platform/idempotency"
	"github.com/artisan-market/api/internal/services"
)

type stubOrderIntake struct {
	placeFunc func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	commands  []services.PlaceOrderCommand
}

func (s *stubOrderIntake) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	s.commands = append(s.commands, cmd)
	if s.placeFunc != nil {
		return s.placeFunc(ctx, cmd)
	}
	return services.PlaceOrderResult{}, nil
}

type stubOrderQuery struct {
	listCustomerFunc func(ctx context.Context, email string) ([]services.CustomerOrderView, error)
	listActiveFunc   func(ctx context.Context) ([]services.ResolvedOrder, error)
}

func (s *stubOrderQuery) ListCustomerOrders(ctx context.Context, email string) ([]services.CustomerOrderView, error) {
	if s.listCustomerFunc != nil {
		return s.listCustomerFunc(ctx, email)
	}
	return nil, nil
}

func (s *stubOrderQuery) ListActiveOrders(ctx context.Context) ([]services.ResolvedOrder, error) {
	if s.listActiveFunc != nil {
		return s.listActiveFunc(ctx)
	}
	return nil, nil
}

type stubOrderProcessor struct {
	processFunc func(ctx context.Context, orderID string) (services.ArchiveRecord, error)
	calls       []string
}

func (s *stubOrderProcessor) ProcessOrder(ctx context.Context, orderID string) (services.ArchiveRecord, error) {
	s.calls = append(s.calls, orderID)
	if s.processFunc != nil {
		return s.processFunc(ctx, orderID)
	}
	return services.ArchiveRecord{}, nil
}

func customerRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	identity := &auth.Identity{UID: "uid-asha", Email: "asha@example.com", Name: "Asha", Roles: []string{auth.RoleUser}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	identity := &auth.Identity{UID: "uid-owner", Email: "owner@example.com", Roles: []string{auth.RoleUser, auth.RoleAdmin}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestOrderHandlersPlaceOrder(t *testing.T) {
	bodies := map[string]string{
		"array":    `[{"productId":"prod-lamp","quantity":2},{"productId":"prod-vase","quantity":1}]`,
		"envelope": `{"items":[{"product_id":"prod-lamp","quantity":2},{"product_id":"prod-vase","quantity":1}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			intake := &stubOrderIntake{
				placeFunc: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
					return services.PlaceOrderResult{
						CheckoutID: "chk-1",
						Orders:     []services.Order{{ID: "ord-1"}, {ID: "ord-2"}},
					}, nil
				},
			}
			profiles := &stubProfileService{}
			handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake, Profiles: profiles})

			rr := httptest.NewRecorder()
			handler.placeOrder(rr, customerRequest(http.MethodPost, "/orders", body))

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp placeOrderResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("expected JSON response: %v", err)
			}
			if resp.Status != "ordered" || !reflect.DeepEqual(resp.OrderIDs, []string{"ord-1", "ord-2"}) {
				t.Fatalf("unexpected response %+v", resp)
			}

			if len(intake.commands) != 1 {
				t.Fatalf("expected one intake call, got %d", len(intake.commands))
			}
			cmd := intake.commands[0]
			if cmd.Customer.Email != "asha@example.com" || cmd.Customer.Name != "Asha" {
				t.Fatalf("unexpected customer %+v", cmd.Customer)
			}
			want := []services.LineItem{{ProductID: "prod-lamp", Quantity: 2}, {ProductID: "prod-vase", Quantity: 1}}
			if !reflect.DeepEqual(cmd.Items, want) {
				t.Fatalf("expected items %+v, got %+v", want, cmd.Items)
			}
			if len(profiles.ensured) != 1 || profiles.ensured[0].Role != auth.RoleUser {
				t.Fatalf("expected profile to be ensured for the customer, got %+v", profiles.ensured)
			}
		})
	}
}

func TestOrderHandlersPlaceOrderReplaysIdempotentSubmission(t *testing.T) {
	intake := &stubOrderIntake{
		placeFunc: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			return services.PlaceOrderResult{Orders: []services.Order{{ID: "ord-1"}}}, nil
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake, Submissions: idempotency.NewMemoryStore()})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `[{"productId":"prod-lamp","quantity":1}]`
	var responses []*httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := customerRequest(http.MethodPost, "/orders/", body)
		req.Header.Set(idempotency.HeaderName, "checkout-7")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		responses = append(responses, rr)
	}

	if len(intake.commands) != 1 {
		t.Fatalf("expected a single intake call, got %d", len(intake.commands))
	}
	if responses[1].Code != http.StatusOK || responses[1].Body.String() != responses[0].Body.String() {
		t.Fatalf("expected replayed response, got %d %s", responses[1].Code, responses[1].Body.String())
	}
	if responses[1].Header().Get(idempotency.ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
}

func TestOrderHandlersPlaceOrderReplaysCommittedNotificationFailure(t *testing.T) {
	intake := &stubOrderIntake{
		placeFunc: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			result := services.PlaceOrderResult{CheckoutID: "chk-1", Orders: []services.Order{{ID: "ord-1"}}}
			return result, &services.NotificationError{OrderIDs: result.OrderIDs(), Err: errBoom}
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake, Submissions: idempotency.NewMemoryStore()})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `[{"productId":"prod-lamp","quantity":2}]`
	var responses []*httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := customerRequest(http.MethodPost, "/orders/", body)
		req.Header.Set(idempotency.HeaderName, "checkout-9")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		responses = append(responses, rr)
	}

	if len(intake.commands) != 1 {
		t.Fatalf("committed checkout must not be placed again, got %d intake calls", len(intake.commands))
	}
	if responses[0].Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on notification failure, got %d", responses[0].Code)
	}
	replayed := responses[1]
	if replayed.Code != http.StatusInternalServerError || replayed.Header().Get(idempotency.ReplayHeader) != "true" {
		t.Fatalf("expected replayed 500, got %d replay=%q", replayed.Code, replayed.Header().Get(idempotency.ReplayHeader))
	}
	var payload struct {
		Error    string   `json:"error"`
		OrderIDs []string `json:"orderIds"`
	}
	if err := json.Unmarshal(replayed.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if payload.Error != "notification_failed" || !reflect.DeepEqual(payload.OrderIDs, []string{"ord-1"}) {
		t.Fatalf("unexpected replayed payload %+v", payload)
	}
}

func TestOrderHandlersPlaceOrderRejectsBadBodies(t *testing.T) {
	cases := map[string]string{
		"empty":       ``,
		"malformed":   `[{"productId":`,
		"no items":    `[]`,
		"empty items": `{"items":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			intake := &stubOrderIntake{}
			handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake})

			rr := httptest.NewRecorder()
			handler.placeOrder(rr, customerRequest(http.MethodPost, "/orders", body))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if code := errorCode(t, rr); code != "invalid_request" {
				t.Fatalf("expected invalid_request, got %v", code)
			}
			if len(intake.commands) != 0 {
				t.Fatalf("expected intake not to be called")
			}
		})
	}
}

func TestOrderHandlersPlaceOrderRequiresIdentity(t *testing.T) {
	handler := NewOrderHandlers(OrderHandlersDeps{Intake: &stubOrderIntake{}})

	rr := httptest.NewRecorder()
	handler.placeOrder(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`[]`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: &services.ValidationError{Field: "quantity", Message: "must be positive"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "profile incomplete", err: &services.ProfileIncompleteError{Email: "asha@example.com", Missing: []string{"phoneNumber"}}, status: http.StatusBadRequest, code: "profile_incomplete"},
		{name: "not found", err: &services.NotFoundError{Resource: "product", ID: "prod-x"}, status: http.StatusNotFound, code: "not_found"},
		{name: "insufficient stock", err: &services.InsufficientStockError{ProductID: "prod-lamp", Requested: 9}, status: http.StatusConflict, code: "insufficient_stock"},
		{name: "notification", err: &services.NotificationError{OrderIDs: []string{"ord-1"}, Err: errBoom}, status: http.StatusInternalServerError, code: "notification_failed"},
		{name: "archival", err: &services.ArchivalError{OrderID: "ord-1", Err: errBoom}, status: http.StatusInternalServerError, code: "archival_failed"},
		{name: "consistency wins over archival", err: &services.ConsistencyError{OrderID: "ord-1", Stage: "delete", Err: &services.ArchivalError{OrderID: "ord-1", Err: errBoom}}, status: http.StatusInternalServerError, code: "consistency_error"},
		{name: "wrapped not found", err: fmt.Errorf("process: %w", &services.NotFoundError{Resource: "order", ID: "ord-9"}), status: http.StatusNotFound, code: "not_found"},
		{name: "unknown", err: errBoom, status: http.StatusInternalServerError, code: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intake := &stubOrderIntake{
				placeFunc: func(context.Context, services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
					return services.PlaceOrderResult{}, tc.err
				},
			}
			handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake})

			rr := httptest.NewRecorder()
			handler.placeOrder(rr, customerRequest(http.MethodPost, "/orders", `[{"productId":"prod-lamp","quantity":1}]`))

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, code)
			}
		})
	}
}

func TestOrderHandlersNotificationFailureListsCommittedOrders(t *testing.T) {
	intake := &stubOrderIntake{
		placeFunc: func(context.Context, services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			return services.PlaceOrderResult{}, &services.NotificationError{OrderIDs: []string{"ord-1", "ord-2"}, Err: errBoom}
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Intake: intake})

	rr := httptest.NewRecorder()
	handler.placeOrder(rr, customerRequest(http.MethodPost, "/orders", `[{"productId":"prod-lamp","quantity":1}]`))

	var body struct {
		OrderIDs []string `json:"orderIds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if !reflect.DeepEqual(body.OrderIDs, []string{"ord-1", "ord-2"}) {
		t.Fatalf("expected committed order ids in details, got %v", body.OrderIDs)
	}
}

func TestOrderHandlersListMyOrders(t *testing.T) {
	created := time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC)
	query := &stubOrderQuery{
		listCustomerFunc: func(ctx context.Context, email string) ([]services.CustomerOrderView, error) {
			if email != "asha@example.com" {
				t.Fatalf("unexpected email %s", email)
			}
			return []services.CustomerOrderView{{
				Order: services.ResolvedOrder{
					ID:        "ord-1",
					ProductID: "prod-lamp",
					Quantity:  2,
					ItemTotal: 99800,
					Status:    domain.OrderStatusPurchased,
					CreatedAt: created,
				},
				Name:     "Brass Lamp",
				Price:    49900,
				ImageURL: "https://cdn.example.com/lamp.jpg",
			}}, nil
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Query: query})

	rr := httptest.NewRecorder()
	handler.listMyOrders(rr, customerRequest(http.MethodGet, "/orders/my-orders", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload []customerOrderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	want := []customerOrderPayload{{
		ID:        "ord-1",
		ProductID: "prod-lamp",
		Name:      "Brass Lamp",
		Price:     49900,
		ImageURL:  "https://cdn.example.com/lamp.jpg",
		Quantity:  2,
		ItemTotal: 99800,
		Status:    "purchased",
		CreatedAt: "2025-01-10T08:30:00Z",
	}}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("expected %+v, got %+v", want, payload)
	}
}

func TestOrderHandlersListActiveOrdersRequiresAdmin(t *testing.T) {
	query := &stubOrderQuery{
		listActiveFunc: func(context.Context) ([]services.ResolvedOrder, error) {
			return []services.ResolvedOrder{{ID: "ord-1", CustomerEmail: "asha@example.com", PhoneNumber: domain.DefaultText}}, nil
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Query: query})

	rr := httptest.NewRecorder()
	handler.listActiveOrders(rr, customerRequest(http.MethodGet, "/orders", ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customer, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.listActiveOrders(rr, adminRequest(http.MethodGet, "/orders", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin, got %d", rr.Code)
	}
	var payload []adminOrderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if len(payload) != 1 || payload[0].PhoneNumber != domain.DefaultText {
		t.Fatalf("expected resolved default phone, got %+v", payload)
	}
}

func TestOrderHandlersProcessOrder(t *testing.T) {
	processor := &stubOrderProcessor{
		processFunc: func(ctx context.Context, orderID string) (services.ArchiveRecord, error) {
			if orderID == "ord-missing" {
				return services.ArchiveRecord{}, &services.NotFoundError{Resource: "order", ID: orderID}
			}
			return services.ArchiveRecord{Order: services.ResolvedOrder{ID: orderID}, Month: "2025-01"}, nil
		},
	}
	handler := NewOrderHandlers(OrderHandlersDeps{Processor: processor})

	rr := httptest.NewRecorder()
	handler.processOrder(rr, withURLParam(adminRequest(http.MethodPost, "/orders/ord-1/process", ""), "orderId", "ord-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp processOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if resp != (processOrderResponse{Status: "processed", OrderID: "ord-1"}) {
		t.Fatalf("unexpected response %+v", resp)
	}

	rr = httptest.NewRecorder()
	handler.processOrder(rr, withURLParam(adminRequest(http.MethodPost, "/orders/ord-missing/process", ""), "orderId", "ord-missing"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersUnavailableServices(t *testing.T) {
	handler := NewOrderHandlers(OrderHandlersDeps{})

	rr := httptest.NewRecorder()
	handler.placeOrder(rr, customerRequest(http.MethodPost, "/orders", `[]`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

var (
	_ services.OrderIntakeService    = (*stubOrderIntake)(nil)
	_ services.OrderQueryService     = (*stubOrderQuery)(nil)
	_ services.OrderProcessorService = (*stubOrderProcessor)(nil)
)
