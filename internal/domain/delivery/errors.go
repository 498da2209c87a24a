package delivery

import "github.com/pharmaerp/backend/internal/domain/shared"

// Error codes raised by the delivery context
const (
	CodeDeleteWindowExpired = "SHORT_RETURN_DELETE_WINDOW_EXPIRED"
	CodeDuplicateLog        = "SHORT_RETURN_DUPLICATE"
	CodeQuantityExceeded    = "SHORT_RETURN_QUANTITY_EXCEEDED"
	CodeInvalidTransition   = "SHORT_RETURN_INVALID_TRANSITION"
	CodeNoDeliveryItems     = "NO_DELIVERY_ITEMS"
	CodeSheetInactive       = "DELIVERY_SHEET_INACTIVE"
	CodeCourierUnavailable  = "COURIER_UNAVAILABLE"
	CodeInvalidTotalData    = "INVALID_TOTAL_DATA"
)

var (
	ErrDeleteWindowExpired = shared.NewDomainError(CodeDeleteWindowExpired, "Short/return records older than the delete window cannot be removed")
	ErrDuplicateLog        = shared.NewDomainError(CodeDuplicateLog, "A short/return log already exists for this date, invoice group and receiver")
	ErrNoDeliveryItems     = shared.NewDomainError(CodeNoDeliveryItems, "No delivery items found")
	ErrSheetInactive       = shared.NewDomainError(CodeSheetInactive, "Delivery sheet is not active")
	ErrCourierUnavailable  = shared.NewDomainError(CodeCourierUnavailable, "Courier is not active")
)
