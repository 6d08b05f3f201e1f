package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/yuin/goldmark"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/artisan-market/api/internal/domain"
)

const (
	eventNotificationSent   = "notifications.sent"
	eventNotificationFailed = "notifications.failed"
)

// NotificationServiceDeps bundles the collaborators required to construct a notification service.
type NotificationServiceDeps struct {
	Sink           NotificationSink
	AdminRecipient string
	Metrics        FulfilmentMetrics
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	sink      NotificationSink
	admin     string
	metrics   FulfilmentMetrics
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
	printer   *message.Printer
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService constructs the service rendering order notifications as text and HTML.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Sink == nil {
		return nil, errors.New("notification service: sink is required")
	}
	admin := strings.TrimSpace(deps.AdminRecipient)
	if admin == "" {
		return nil, errors.New("notification service: admin recipient is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		sink:      deps.Sink,
		admin:     admin,
		metrics:   metrics,
		newID:     idGen,
		logger:    logger,
		markdown:  goldmark.New(),
		sanitizer: bluemonday.UGCPolicy(),
		printer:   message.NewPrinter(language.MustParse("en-IN")),
	}, nil
}

func (s *notificationService) NotifyOrderPlaced(ctx context.Context, notice OrderPlacedNotice) error {
	if len(notice.Breakdown.Lines) == 0 {
		return errors.New("notification service: order placed notice has no lines")
	}

	customer := notice.Customer
	var body strings.Builder
	fmt.Fprintf(&body, "## New order %s\n\n", markdownText(notice.CheckoutID))
	fmt.Fprintf(&body, "Placed at %s\n\n", notice.PlacedAt.UTC().Format(time.RFC1123))
	body.WriteString("### Customer\n\n")
	fmt.Fprintf(&body, "- Name: %s\n", markdownText(orDefault(customer.Name)))
	fmt.Fprintf(&body, "- Email: %s\n", markdownText(orDefault(customer.Email)))
	fmt.Fprintf(&body, "- Phone: %s\n\n", markdownText(orDefault(customer.PhoneNumber)))
	body.WriteString("### Delivery address\n\n")
	fmt.Fprintf(&body, "%s\n\n", markdownText(formatAddress(customer.Address, customer.City, customer.State, customer.Pincode)))
	body.WriteString("### Items\n\n")
	for _, line := range notice.Breakdown.Lines {
		fmt.Fprintf(&body, "- %s (%s) x %d at %s = %s\n",
			markdownText(line.Name),
			markdownText(orDefault(line.Category)),
			line.Quantity,
			s.formatRupees(line.UnitPrice),
			s.formatRupees(line.Total),
		)
	}
	fmt.Fprintf(&body, "\n**Total: %s**\n", s.formatRupees(notice.Breakdown.Total))

	msg, err := s.render(NotificationMessage{
		Kind:    domain.NotificationOrderPlaced,
		OrderID: notice.CheckoutID,
		To:      s.admin,
		Subject: fmt.Sprintf("New Order from %s", orDefault(customer.Name)),
	}, body.String())
	if err != nil {
		return err
	}
	_, err = s.send(ctx, msg)
	return err
}

func (s *notificationService) NotifyOrderProcessed(ctx context.Context, order ResolvedOrder) (string, error) {
	recipient := strings.TrimSpace(order.CustomerEmail)
	if recipient == "" || recipient == domain.DefaultText {
		return "", fmt.Errorf("notification service: order %s has no customer email", order.ID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", markdownText(order.CustomerName))
	fmt.Fprintf(&body, "Your order **%s** has been processed and is on its way.\n\n", markdownText(order.ID))
	fmt.Fprintf(&body, "- Product: %s\n", markdownText(order.ProductName))
	fmt.Fprintf(&body, "- Quantity: %d\n", order.Quantity)
	fmt.Fprintf(&body, "- Unit price: %s\n", s.formatRupees(order.ProductPrice))
	fmt.Fprintf(&body, "- Total: %s\n\n", s.formatRupees(order.ItemTotal))
	body.WriteString("### Delivery details\n\n")
	fmt.Fprintf(&body, "%s\n\n", markdownText(formatAddress(order.DeliveryAddress, order.City, order.State, order.Pincode)))
	fmt.Fprintf(&body, "Phone: %s\n", markdownText(order.PhoneNumber))

	msg, err := s.render(NotificationMessage{
		Kind:    domain.NotificationOrderProcessed,
		OrderID: order.ID,
		To:      recipient,
		Subject: fmt.Sprintf("Order #%s Processed", order.ID),
	}, body.String())
	if err != nil {
		return "", err
	}
	return s.send(ctx, msg)
}

func (s *notificationService) render(msg NotificationMessage, markdown string) (NotificationMessage, error) {
	var html bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &html); err != nil {
		return NotificationMessage{}, fmt.Errorf("render notification: %w", err)
	}
	msg.ID = s.newID()
	msg.Text = markdown
	msg.HTML = s.sanitizer.Sanitize(html.String())
	return msg, nil
}

func (s *notificationService) send(ctx context.Context, msg NotificationMessage) (string, error) {
	messageID, err := s.sink.Send(ctx, msg)
	if err != nil {
		s.metrics.ObserveNotification(msg.Kind, OutcomeFailure)
		s.logger(ctx, eventNotificationFailed, map[string]any{
			"kind":    string(msg.Kind),
			"orderId": msg.OrderID,
			"error":   err.Error(),
		})
		return "", err
	}
	if strings.TrimSpace(messageID) == "" {
		messageID = msg.ID
	}
	s.metrics.ObserveNotification(msg.Kind, OutcomeSuccess)
	s.logger(ctx, eventNotificationSent, map[string]any{
		"kind":      string(msg.Kind),
		"orderId":   msg.OrderID,
		"messageId": messageID,
	})
	return messageID, nil
}

// formatRupees renders an amount in paise as rupees with two decimals.
func (s *notificationService) formatRupees(paise int64) string {
	symbol := s.printer.Sprint(currency.Symbol(currency.INR))
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, symbol, s.printer.Sprintf("%d", paise/100), paise%100)
}

func formatAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" && trimmed != domain.DefaultText {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		return domain.DefaultText
	}
	return strings.Join(kept, ", ")
}

func orDefault(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return domain.DefaultText
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"#", `\#`, "<", "&lt;", ">", "&gt;",
)

// markdownText escapes customer supplied text so it renders literally.
func markdownText(value string) string {
	return markdownEscaper.Replace(strings.TrimSpace(value))
}
