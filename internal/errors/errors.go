// Package errors defines the ArticlePulse error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable, client-visible identifier of an error class.
type ErrorCode string

const (
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeNoContent              ErrorCode = "NO_CONTENT"
	CodeAuthenticationRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	CodePurchaseRequired       ErrorCode = "PURCHASE_REQUIRED"
	CodeLedgerUnavailable      ErrorCode = "LEDGER_UNAVAILABLE"
	CodeDuplicatePurchase      ErrorCode = "DUPLICATE_PURCHASE"
	CodeConflict               ErrorCode = "CONFLICT"
	CodeInsufficientBalance    ErrorCode = "INSUFFICIENT_BALANCE"
	CodePartialPurchase        ErrorCode = "PARTIAL_PURCHASE"
	CodeDecryption             ErrorCode = "DECRYPTION_ERROR"
	CodeContentCorrupted       ErrorCode = "CONTENT_CORRUPTED"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeInvalidToken           ErrorCode = "INVALID_TOKEN"
	CodeRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// ServiceError is an error with a code, an HTTP status and optional details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError with the same code, so the sentinels below work with errors.Is.
func (e *ServiceError) Is(target error) bool {
	var t *ServiceError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e with key set in Details.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &ServiceError{Code: CodeValidation}
	ErrNotFound               = &ServiceError{Code: CodeNotFound}
	ErrNoContent              = &ServiceError{Code: CodeNoContent}
	ErrAuthenticationRequired = &ServiceError{Code: CodeAuthenticationRequired}
	ErrPurchaseRequired       = &ServiceError{Code: CodePurchaseRequired}
	ErrLedgerUnavailable      = &ServiceError{Code: CodeLedgerUnavailable}
	ErrDuplicatePurchase      = &ServiceError{Code: CodeDuplicatePurchase}
	ErrConflict               = &ServiceError{Code: CodeConflict}
	ErrInsufficientBalance    = &ServiceError{Code: CodeInsufficientBalance}
	ErrPartialPurchase        = &ServiceError{Code: CodePartialPurchase}
	ErrDecryption             = &ServiceError{Code: CodeDecryption}
	ErrContentCorrupted       = &ServiceError{Code: CodeContentCorrupted}
	ErrInternal               = &ServiceError{Code: CodeInternal}
)

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports malformed input on field.
func Validation(field, message string) *ServiceError {
	e := newError(CodeValidation, http.StatusBadRequest, message, nil)
	if field != "" {
		e = e.WithDetails("field", field)
	}
	return e
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil).WithDetails("id", id)
}

// NoContent reports an article that exists but has no encrypted body.
func NoContent(articleID string) *ServiceError {
	return newError(CodeNoContent, http.StatusNotFound, "content not available for this article", nil).WithDetails("id", articleID)
}

func AuthenticationRequired(message string) *ServiceError {
	if message == "" {
		message = "user address required"
	}
	return newError(CodeAuthenticationRequired, http.StatusForbidden, message, nil)
}

func PurchaseRequired(articleID string) *ServiceError {
	return newError(CodePurchaseRequired, http.StatusForbidden, "article not purchased", nil).WithDetails("articleId", articleID)
}

// LedgerUnavailable wraps any failure to get a definitive answer from the ledger.
func LedgerUnavailable(err error) *ServiceError {
	return newError(CodeLedgerUnavailable, http.StatusServiceUnavailable, "ledger unavailable", err)
}

func DuplicatePurchase(message string) *ServiceError {
	if message == "" {
		message = "purchase already recorded"
	}
	return newError(CodeDuplicatePurchase, http.StatusConflict, message, nil)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

func InsufficientBalance(balance, price string) *ServiceError {
	return newError(CodeInsufficientBalance, http.StatusPaymentRequired, "insufficient token balance", nil).
		WithDetails("balance", balance).
		WithDetails("price", price)
}

// PartialPurchase reports an approval that went through while the purchase did not.
func PartialPurchase(approvalRef string, err error) *ServiceError {
	return newError(CodePartialPurchase, http.StatusBadGateway, "approval confirmed but purchase failed", err).
		WithDetails("approvalReference", approvalRef)
}

func Decryption(err error) *ServiceError {
	return newError(CodeDecryption, http.StatusInternalServerError, "decryption failed", err)
}

func ContentCorrupted(err error) *ServiceError {
	return newError(CodeContentCorrupted, http.StatusInternalServerError, "stored content could not be decrypted", err)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "forbidden"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// GetServiceError extracts the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of err, CodeInternal for foreign errors and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if se := GetServiceError(err); se != nil {
		return se.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
