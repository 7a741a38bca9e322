package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/middleware"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/utils"
)

const maxBodySize = 1 << 20

var (
	errMalformed  = errors.New("malformed request body")
	errValidation = errors.New("validation failed")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain errors onto HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errMalformed), errors.Is(err, utils.ErrBadParam):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errs.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrAccountInactive):
		return http.StatusForbidden, "account_inactive"
	case errors.Is(err, errs.ErrAccountNotFound), errors.Is(err, errs.ErrOrderNotFound),
		errors.Is(err, errs.ErrServiceNotFound), errors.Is(err, errs.ErrProviderNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrAlreadyRefunded):
		return http.StatusConflict, "already_refunded"
	case errors.Is(err, errs.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, errs.ErrServiceInactive):
		return http.StatusConflict, "service_inactive"
	case errors.Is(err, errs.ErrConcurrentUpdateConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrEmailTaken):
		return http.StatusConflict, "email_taken"
	case errors.Is(err, errValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, errs.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "invalid_quantity"
	case errors.Is(err, errs.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, errs.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func (srv *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		srv.deps.Logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		message = http.StatusText(status)
	}

	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// decode reads a JSON body. strict rejects unknown fields, which is how a
// stray balance field in a profile update is refused.
func (srv *Server) decode(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func (srv *Server) validate(v any) error {
	if err := srv.deps.Validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %s", errValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	return nil
}

// decodeValid is decode followed by validate.
func (srv *Server) decodeValid(r *http.Request, v any, strict bool) error {
	if err := srv.decode(r, v, strict); err != nil {
		return err
	}
	return srv.validate(v)
}

func currentAccount(r *http.Request) (model.Account, error) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		return model.Account{}, errs.ErrInvalidToken
	}
	return acc, nil
}
