package handlers

import (
	"net/http"

	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// Callable status codes
const (
	CallableInvalidArgument    = "INVALID_ARGUMENT"
	CallableFailedPrecondition = "FAILED_PRECONDITION"
	CallableNotFound           = "NOT_FOUND"
	CallableAlreadyExists      = "ALREADY_EXISTS"
	CallableUnavailable        = "UNAVAILABLE"
	CallableInternal           = "INTERNAL"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	msg := services.GetErrorMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, msg)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, msg, details)

	case services.IsPreconditionError(err):
		writeErr = utils.WritePreconditionFailed(w, msg)

	case services.IsMethodNotAllowedError(err):
		writeErr = utils.WriteMethodNotAllowed(w, http.MethodPost, http.MethodOptions)

	case services.IsConflictError(err):
		writeErr = utils.WriteError(w, http.StatusConflict, msg, details)

	case services.IsUpstreamError(err):
		logger.Warn("upstream error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, msg, details)

	case services.IsInternalError(err):
		// Log internal errors but return the summary message only
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, msg)

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleCallableError maps domain errors to the callable error envelope
func HandleCallableError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, code := callableStatus(err)
	msg := services.GetErrorMessage(err)
	if code == CallableInternal {
		logger.Error("callable internal error", zap.Error(err))
		if !services.IsInternalError(err) {
			msg = "An unexpected error occurred"
		}
	}

	if writeErr := utils.WriteCallableError(w, status, code, msg, services.GetErrorDetails(err)); writeErr != nil {
		logger.Error("failed to write callable error", zap.Error(writeErr))
	}
}

func callableStatus(err error) (int, string) {
	switch services.GetErrorType(err) {
	case services.ErrorTypeValidation:
		return http.StatusBadRequest, CallableInvalidArgument
	case services.ErrorTypePrecondition:
		return http.StatusPreconditionFailed, CallableFailedPrecondition
	case services.ErrorTypeNotFound:
		return http.StatusNotFound, CallableNotFound
	case services.ErrorTypeConflict:
		return http.StatusConflict, CallableAlreadyExists
	case services.ErrorTypeUpstream:
		return http.StatusServiceUnavailable, CallableUnavailable
	default:
		return http.StatusInternalServerError, CallableInternal
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
