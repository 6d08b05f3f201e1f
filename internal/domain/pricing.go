package domain

// CheckoutLine captures the priced outcome of one reserved line item.
type CheckoutLine struct {
	OrderID   string
	ProductID string
	Name      string
	Category  string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// CheckoutBreakdown aggregates the priced lines of a checkout.
type CheckoutBreakdown struct {
	Lines []CheckoutLine
	Total int64
}

// Add appends a line and accumulates the running total.
func (b *CheckoutBreakdown) Add(line CheckoutLine) {
	b.Lines = append(b.Lines, line)
	b.Total += line.Total
}

// LineTotal computes the total for a line in paise.
func LineTotal(unitPrice int64, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	return unitPrice * int64(quantity)
}
