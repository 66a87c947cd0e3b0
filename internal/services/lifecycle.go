package services

import (
	"strings"
	"time"

	"github.com/rentify/rentify-go/internal/models"
	"github.com/shopspring/decimal"
)

// Allowed rental status moves. Anything not listed is terminal.
var transitions = map[models.RentalStatus][]models.RentalStatus{
	models.StatusPending:  {models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusApproved: {models.StatusCancelled, models.StatusCompleted},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to models.RentalStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StockDelta is the change to the cloth quantity caused by a transition.
// Accept takes stock; cancelling an approved request and completing one
// give it back.
func StockDelta(from, to models.RentalStatus, quantity int) int {
	switch {
	case from == models.StatusPending && to == models.StatusApproved:
		return -quantity
	case from == models.StatusApproved && to == models.StatusCancelled:
		return quantity
	case from == models.StatusApproved && to == models.StatusCompleted:
		return quantity
	}
	return 0
}

// Deletable reports whether a request in status may be hard-deleted.
func Deletable(status models.RentalStatus) bool {
	return status == models.StatusCancelled || status == models.StatusRejected
}

// Quote returns the inclusive day count and price for renting quantity
// items from start to end.
func Quote(start, end time.Time, quantity int, rentPerDay decimal.Decimal) (int, decimal.Decimal) {
	days := int(dateOnly(end).Sub(dateOnly(start)).Hours()/24) + 1
	price := rentPerDay.Mul(decimal.NewFromInt(int64(days))).Mul(decimal.NewFromInt(int64(quantity)))
	return days, price
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const dateLayout = "2006-01-02"

// pickup inputs come from datetime-local widgets or RFC 3339 clients
var dateTimeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339, "2006-01-02 15:04"}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, invalid(field, "Invalid dates.")
	}
	return t, nil
}

// parseDateTime returns nil for a blank value.
func parseDateTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, invalid(field, "Invalid pickup time.")
}

// checkPeriod enforces start >= today and end >= start.
func checkPeriod(start, end, now time.Time) error {
	if dateOnly(start).Before(dateOnly(now)) {
		return invalid("start_date", "Start date cannot be in the past.")
	}
	if dateOnly(end).Before(dateOnly(start)) {
		return invalid("end_date", "End date cannot be before start date.")
	}
	return nil
}

// checkQuantity enforces 1 <= quantity <= stock.
func checkQuantity(quantity, stock int) error {
	if quantity <= 0 {
		return invalid("quantity", "Quantity must be greater than 0.")
	}
	if quantity > stock {
		return invalid("quantity", "Requested quantity not available.")
	}
	return nil
}
