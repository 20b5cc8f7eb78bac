package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business failure so callers can branch on it
// without inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindGateway
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// User-facing messages shared by several operations.
const (
	MsgInvalidOrder        = "Invalid Order"
	MsgInvalidRider        = "Invalid Rider"
	MsgInvalidProduct      = "Invalid Product"
	MsgInvalidAddress      = "Invalid Address"
	MsgInvalidCart         = "Invalid Cart"
	MsgInvalidStatus       = "Invalid Status"
	MsgInvalidReference    = "Invalid Reference"
	MsgEmptyCart           = "No Items In Cart"
	MsgOrderNotFound       = "Order not found"
	MsgPaymentNotVerified  = "Payment Not Verified"
	MsgPaymentUnsuccessful = "Payment not successful"
	MsgPaymentAmountShort  = "Amount paid does not cover the order total"
	MsgProductUnavailable  = "Product no longer available"
	MsgNotInCart           = "Product not found in cart"
	MsgCartChanged         = "Cart changed during payment confirmation"
	MsgCheckoutInProgress  = "Checkout Already In Progress"
	MsgPaymentInitFailed   = "Payment initialization failed"
	MsgPaymentVerifyFailed = "Payment verification failed"
	MsgInvalidQuantity     = "Quantity must be positive"
	MsgCartNotFound        = "Cart not found"
	MsgCartBusy            = "Cart is being updated, please retry"
)

// Error is the tagged failure returned by application operations.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func NewGatewayError(message string, err error) *Error {
	return &Error{Kind: KindGateway, Message: message, Err: err}
}

func NewUnauthorizedError(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// InsufficientStockError reports the first cart line that cannot be served.
func InsufficientStockError(productName string, available int) *Error {
	return NewValidationError(fmt.Sprintf("Insufficient stock for %s. Only %d available.", productName, available))
}

// KindOf returns the kind of a tagged error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err. Internal errors are
// never exposed verbatim.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "internal server error"
}
