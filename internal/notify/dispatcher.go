package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

const signature = "- Team Rentify"

// Email kinds, used as the metric label.
const (
	KindWelcome    = "welcome"
	KindNewRequest = "new_request"
	KindApproved   = "approved"
	KindRejected   = "rejected"
	KindReceipt    = "receipt"
	KindCompleted  = "completed"
	KindResetCode  = "reset_code"
)

// Dispatcher turns domain events into emails. Sends are synchronous and
// errors are returned to the caller.
type Dispatcher struct {
	mailer  Mailer
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher sending through mailer.
func NewDispatcher(mailer Mailer, m *metrics.AppMetrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{mailer: mailer, metrics: m, logger: logger}
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg Message) error {
	err := d.mailer.Send(ctx, msg)
	if d.metrics != nil {
		d.metrics.RecordEmail(ctx, kind, err == nil)
	}
	if err != nil {
		d.logger.Error("email delivery failed",
			zap.String("kind", kind),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	d.logger.Info("email sent", zap.String("kind", kind), zap.String("to", msg.To))
	return nil
}

// Welcome greets a newly registered account.
func (d *Dispatcher) Welcome(ctx context.Context, acc *models.Account, fullName string) error {
	role := acc.Role()
	if role != "" {
		role = strings.ToUpper(role[:1]) + role[1:]
	}
	body := fmt.Sprintf(`Hello %s,

Welcome to Rentify!

Your account has been successfully created as a %s.

You can now login and start using Rentify.

%s
`, fullName, role, signature)

	return d.send(ctx, KindWelcome, Message{To: acc.Email, Subject: "Welcome to Rentify", Body: body})
}

// NewRequest tells the seller a buyer wants to rent their item.
func (d *Dispatcher) NewRequest(ctx context.Context, r *models.RentalDetail) error {
	body := fmt.Sprintf(`Hello %s,

You have received a new rental request.

Item: %s
Quantity: %d
Rental Period: %s
Total Amount: INR %s

Please login to your seller dashboard to take action.

%s
`, r.SellerName, r.ClothName, r.Quantity, period(r), r.TotalPrice.StringFixed(2), signature)

	return d.send(ctx, KindNewRequest, Message{To: r.SellerEmail, Subject: "New Rental Request Received", Body: body})
}

// Approved tells the buyer the seller accepted.
func (d *Dispatcher) Approved(ctx context.Context, r *models.RentalDetail) error {
	var extra strings.Builder
	if r.SellerConfirmedPickupAt != nil {
		fmt.Fprintf(&extra, "Pickup: %s\n", r.SellerConfirmedPickupAt.Format("2006-01-02 15:04"))
	}
	if r.SellerNote != "" {
		fmt.Fprintf(&extra, "Seller note: %s\n", r.SellerNote)
	}

	body := fmt.Sprintf(`Hello %s,

Good news! Your rental request has been approved.

Item: %s
Quantity: %d
Rental Period: %s
Total Amount: INR %s
%s
Please proceed with payment.

%s
`, r.BuyerName, r.ClothName, r.Quantity, period(r), r.TotalPrice.StringFixed(2), extra.String(), signature)

	return d.send(ctx, KindApproved, Message{To: r.BuyerEmail, Subject: "Your Rent Request is Approved", Body: body})
}

// Rejected tells the buyer the seller declined.
func (d *Dispatcher) Rejected(ctx context.Context, r *models.RentalDetail) error {
	note := ""
	if r.SellerNote != "" {
		note = "Seller note: " + r.SellerNote + "\n"
	}
	body := fmt.Sprintf(`Hello %s,

Unfortunately, your rental request has been rejected.

Item: %s
%s
You can browse other available clothes on Rentify.

%s
`, r.BuyerName, r.ClothName, note, signature)

	return d.send(ctx, KindRejected, Message{To: r.BuyerEmail, Subject: "Rent Request Rejected", Body: body})
}

// Receipt confirms payment and attaches the PDF receipt.
func (d *Dispatcher) Receipt(ctx context.Context, r *models.RentalDetail) error {
	pdf, err := RenderReceipt(r)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(`Hello %s,

Your payment has been successfully received.

Please find the attached PDF receipt for your records.

Thank you for choosing Rentify.

%s
`, r.BuyerName, signature)

	return d.send(ctx, KindReceipt, Message{
		To:          r.BuyerEmail,
		Subject:     "Payment Confirmation Receipt",
		Body:        body,
		Attachments: []Attachment{{Name: ReceiptName(r), Data: pdf}},
	})
}

// Completed thanks the buyer for returning the item.
func (d *Dispatcher) Completed(ctx context.Context, r *models.RentalDetail) error {
	body := fmt.Sprintf(`Hello %s,

Your rental has been completed successfully.

Item: %s
Thank you for returning the item.

We hope to see you again on Rentify!

%s
`, r.BuyerName, r.ClothName, signature)

	return d.send(ctx, KindCompleted, Message{To: r.BuyerEmail, Subject: "Rental Completed Successfully", Body: body})
}

// ResetCode emails a password reset code.
func (d *Dispatcher) ResetCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("Your OTP for password reset is: %s\n\nIt expires shortly. If you did not ask for a reset, ignore this email.\n\n%s\n", code, signature)
	return d.send(ctx, KindResetCode, Message{To: email, Subject: "Your Rentify OTP", Body: body})
}
