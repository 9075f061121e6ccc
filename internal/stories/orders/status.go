package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"engagement-shop/internal/infra/supplier"
)

// MapSupplierStatus translates a panel status into the order status.
func MapSupplierStatus(status string) Status {
	switch status {
	case supplier.StatusCompleted:
		return StatusCompleted
	case supplier.StatusPartial:
		return StatusPartial
	case supplier.StatusCanceled, supplier.StatusRefunded:
		return StatusCanceled
	case supplier.StatusInProgress, supplier.StatusPending:
		return StatusProcessing
	default:
		return StatusFailed
	}
}

// MapRefillStatus translates a panel refill status.
func MapRefillStatus(status string) RefillStatus {
	switch strings.ToLower(status) {
	case "completed":
		return RefillCompleted
	case "rejected", "canceled", "cancelled", "error":
		return RefillRejected
	case "in progress", "processing":
		return RefillProcessing
	default:
		return RefillPending
	}
}

// NextOrderNumber builds ORD-YYYYMM-NNNN following last, the previous number of the same month.
func NextOrderNumber(last string, now time.Time) string {
	prefix := OrderNumberPrefix(now)

	sequence := 1
	if strings.HasPrefix(last, prefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(last, prefix)); err == nil {
			sequence = n + 1
		}
	}

	return fmt.Sprintf("%s%04d", prefix, sequence)
}

func OrderNumberPrefix(now time.Time) string {
	return fmt.Sprintf("ORD-%04d%02d-", now.Year(), int(now.Month()))
}
