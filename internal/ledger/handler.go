package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const idempotencyModule = "ledger.voucher.create"

// IdempotencyPort guards voucher creation against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the voucher JSON endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency IdempotencyPort
}

// NewHandler builds a Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), idempotency: idempotency}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies/{companyID}/vouchers", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleShow)
		r.Post("/{id}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body: %v", ErrInvalidInput, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, validationError(err))
		return
	}
	in, err := req.toInput(companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				err = fmt.Errorf("%w: key %q", ErrDuplicateRequest, key)
			}
			httpx.RespondError(w, err)
			return
		}
	}

	result, err := h.service.CreateVoucher(r.Context(), in)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
				h.logger.WarnContext(r.Context(), "release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := listInputFromQuery(r, companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListVouchers(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	agg, err := h.service.GetVoucher(r.Context(), companyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.MarkRead(r.Context(), companyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listInputFromQuery(r *http.Request, companyID int64) (ListVouchersInput, error) {
	q := r.URL.Query()
	in := ListVouchersInput{CompanyID: companyID}
	tab, err := ParseTab(q.Get("tab"))
	if err != nil {
		return in, err
	}
	in.Tab = tab
	if raw := q.Get("type"); raw != "" {
		typ, err := ParseVoucherType(raw)
		if err != nil {
			return in, err
		}
		in.Type = &typ
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseReverseStatus(raw)
		if err != nil {
			return in, err
		}
		in.Status = &status
	}
	if in.Sort, err = ParseSortRules(q.Get("sortOption")); err != nil {
		return in, err
	}
	for name, dst := range map[string]*int64{"dateFrom": &in.DateFrom, "dateTo": &in.DateTo} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v < 0 {
				return in, fmt.Errorf("%w: %s must be epoch seconds", ErrInvalidInput, name)
			}
			*dst = v
		}
	}
	for name, dst := range map[string]*int{"page": &in.Page, "perPage": &in.PerPage} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				return in, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidInput, name)
			}
			*dst = v
		}
	}
	return in, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrInvalidInput, name)
	}
	return id, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrInvalidInput, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
