package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/platform/requestctx"
	"github.com/artisan-market/api/internal/services"
)

// writeServiceError maps typed service failures onto the API error envelope. Consistency
// failures are checked first because they may wrap an archival or notification cause.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var (
		consistencyErr  *services.ConsistencyError
		validationErr   *services.ValidationError
		incompleteErr   *services.ProfileIncompleteError
		notFoundErr     *services.NotFoundError
		stockErr        *services.InsufficientStockError
		notificationErr *services.NotificationError
		archivalErr     *services.ArchivalError
	)

	switch {
	case errors.As(err, &consistencyErr):
		requestctx.Logger(ctx).Error("order state needs attention",
			zap.String("order_id", consistencyErr.OrderID),
			zap.String("stage", consistencyErr.Stage),
			zap.Error(err),
		)
		httpx.WriteError(ctx, w, httpx.NewError("consistency_error", "order state could not be finalised", http.StatusInternalServerError).
			WithDetails(map[string]any{"orderId": consistencyErr.OrderID, "stage": consistencyErr.Stage}))
	case errors.As(err, &validationErr):
		apiErr := httpx.NewError("invalid_request", validationErr.Error(), http.StatusBadRequest)
		if validationErr.Field != "" {
			apiErr = apiErr.WithDetails(map[string]any{"field": validationErr.Field})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.As(err, &incompleteErr):
		httpx.WriteError(ctx, w, httpx.NewError("profile_incomplete", "complete your profile before placing an order", http.StatusBadRequest).
			WithDetails(map[string]any{"missing": incompleteErr.Missing}))
	case errors.As(err, &notFoundErr):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", notFoundErr.Error(), http.StatusNotFound))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"productId": stockErr.ProductID}))
	case errors.As(err, &notificationErr):
		requestctx.Logger(ctx).Error("notification failed", zap.Strings("order_ids", notificationErr.OrderIDs), zap.Error(err))
		apiErr := httpx.NewError("notification_failed", "notification could not be delivered", http.StatusInternalServerError)
		if len(notificationErr.OrderIDs) > 0 {
			apiErr = apiErr.WithDetails(map[string]any{"orderIds": notificationErr.OrderIDs})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.As(err, &archivalErr):
		requestctx.Logger(ctx).Error("archive append failed", zap.String("order_id", archivalErr.OrderID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("archival_failed", "order could not be archived", http.StatusInternalServerError))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
