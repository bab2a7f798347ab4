package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Constructors(t *testing.T) {
	err := NewAppError(http.StatusBadRequest, "bad", ErrBadRequest)
	assert.Equal(t, http.StatusBadRequest, err.Code)
	assert.Equal(t, "bad", err.Message)
	assert.Equal(t, ErrBadRequest.Error(), err.Error())

	notFound := NotFound("missing")
	assert.Equal(t, http.StatusNotFound, notFound.Code)

	conflict := Conflict("processing in progress")
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.ErrorIs(t, conflict.Err, ErrContention)

	tooMany := TooManyRequests("slow down")
	assert.Equal(t, http.StatusTooManyRequests, tooMany.Code)

	paymentRequired := PaymentRequired("pay up")
	assert.Equal(t, http.StatusPaymentRequired, paymentRequired.Code)

	gatewayTimeout := GatewayTimeout("too slow")
	assert.Equal(t, http.StatusGatewayTimeout, gatewayTimeout.Code)

	internal := InternalError(stderrors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, internal.Code)
	assert.Equal(t, "db down", internal.Error())

	custom := NewError("custom", ErrForbidden)
	assert.Equal(t, ErrForbidden.Error(), custom.Error())

	badReq := BadRequest("bad request")
	assert.Equal(t, http.StatusBadRequest, badReq.Code)

	unauth := Unauthorized("unauthorized")
	assert.Equal(t, http.StatusUnauthorized, unauth.Code)

	forbidden := Forbidden("forbidden")
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
}

func TestAppError_ErrorFallsBackToMessage(t *testing.T) {
	err := &AppError{Code: http.StatusTeapot, Message: "no wrapped error"}
	assert.Equal(t, "no wrapped error", err.Error())
}
