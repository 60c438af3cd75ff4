package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/commerce"
)

// statusFor maps an error kind to its HTTP status. Every kind has its own
// code in the response body, so 400 and 409 stay distinguishable.
var statusFor = map[commerce.Kind]int{
	commerce.KindNotFound:               http.StatusNotFound,
	commerce.KindInvalidInput:           http.StatusBadRequest,
	commerce.KindInsufficientStock:      http.StatusConflict,
	commerce.KindInvalidPeriod:          http.StatusBadRequest,
	commerce.KindNoInvoicesFound:        http.StatusUnprocessableEntity,
	commerce.KindDuplicateEntity:        http.StatusConflict,
	commerce.KindReportGenerationFailed: http.StatusBadGateway,
	commerce.KindConcurrentModification: http.StatusServiceUnavailable,
	commerce.KindUnauthorized:           http.StatusUnauthorized,
	commerce.KindForbidden:              http.StatusForbidden,
	commerce.KindInternal:               http.StatusInternalServerError,
}

func statusOf(kind commerce.Kind) int {
	if status, ok := statusFor[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err in the standard envelope. Internal errors are
// logged and their message is not exposed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := commerce.KindOf(err)
	resp := ErrorResponse{Error: err.Error(), Code: string(kind)}

	var verr *requestValidationError
	var stockErr *commerce.InsufficientStockError
	switch {
	case errors.As(err, &verr):
		resp.Details = verr.fields
	case errors.As(err, &stockErr):
		resp.Details = map[string]any{
			"product_id": string(stockErr.ProductID),
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		}
	}

	if kind == commerce.KindInternal || kind == commerce.KindReportGenerationFailed {
		h.logger().WithFields(logrus.Fields{
			"module":     "api",
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestID(r),
		}).WithError(err).Error("request failed")
	}
	if kind == commerce.KindInternal {
		resp.Error = "internal server error"
	}

	writeJSON(w, statusOf(kind), resp)
}
