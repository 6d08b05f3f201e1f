package domain

import "strings"

// ResolveDefaults returns a complete view of the order, substituting explicit defaults for
// fields that are absent on older records. The input is never modified.
//
// Missing text becomes DefaultText, missing numbers become zero and a missing item total is
// derived from the snapshot price and quantity.
func ResolveDefaults(order Order) ResolvedOrder {
	price := int64Value(order.ProductPrice)

	total := LineTotal(price, order.Quantity)
	if order.ItemTotal != nil {
		total = *order.ItemTotal
	}

	status := order.Status
	if strings.TrimSpace(string(status)) == "" {
		status = OrderStatusPurchased
	}

	return ResolvedOrder{
		ID:              order.ID,
		CheckoutID:      order.CheckoutID,
		ProductID:       order.ProductID,
		Quantity:        order.Quantity,
		ProductName:     textValue(order.ProductName),
		ProductCategory: textValue(order.ProductCategory),
		ProductPrice:    price,
		CustomerEmail:   textValue(&order.CustomerEmail),
		CustomerName:    textValue(order.CustomerName),
		PhoneNumber:     textValue(order.PhoneNumber),
		DeliveryAddress: textValue(order.DeliveryAddress),
		City:            textValue(order.City),
		State:           textValue(order.State),
		Pincode:         textValue(order.Pincode),
		ItemTotal:       total,
		Status:          status,
		CreatedAt:       order.CreatedAt,
	}
}

// StringPtr returns a pointer to a trimmed copy of value.
func StringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	return &trimmed
}

// Int64Ptr returns a pointer to a copy of value.
func Int64Ptr(value int64) *int64 {
	return &value
}

func textValue(value *string) string {
	if value == nil {
		return DefaultText
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return DefaultText
	}
	return trimmed
}

func int64Value(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}
