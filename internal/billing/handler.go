package billing

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/platform/httpx"
	"github.com/mirador-hq/mirador/internal/registry"
)

// Handler exposes the billing engine over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes attaches billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses", h.createExpense)
	r.Get("/expenses/{id}", h.getExpense)
	r.Post("/expenses/{id}/distribute", h.distribute)
	r.Post("/expenses/{id}/replace", h.replaceExpense)
	r.Get("/charges/{id}", h.getCharge)
	r.Post("/payments", h.registerPayment)
	r.Post("/payments/{id}/validate", h.validatePayment)
}

type selectionRequest struct {
	Kind         string  `json:"kind" validate:"required,oneof=ALL BY_TOWER BY_FLOOR EXPLICIT_IDS"`
	Tower        string  `json:"tower,omitempty"`
	Floor        int     `json:"floor,omitempty"`
	ApartmentIDs []int64 `json:"apartment_ids,omitempty"`
}

type createExpenseRequest struct {
	Description  string           `json:"description" validate:"required"`
	Category     string           `json:"category"`
	TotalUSD     decimal.Decimal  `json:"total_usd" validate:"required"`
	IncurredDate string           `json:"incurred_date" validate:"required,datetime=2006-01-02"`
	Selection    selectionRequest `json:"selection" validate:"required"`
	EqualSplit   bool             `json:"equal_split"`
}

type expenseResponse struct {
	ID           int64            `json:"id"`
	Description  string           `json:"description"`
	Category     string           `json:"category,omitempty"`
	TotalUSD     decimal.Decimal  `json:"total_usd"`
	TotalLocal   decimal.Decimal  `json:"total_local"`
	RateUsed     decimal.Decimal  `json:"rate_used"`
	IncurredDate string           `json:"incurred_date"`
	Status       ExpenseStatus    `json:"status"`
	Allocations  []allocationView `json:"allocations,omitempty"`
}

type allocationView struct {
	ApartmentID int64           `json:"apartment_id"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	AmountLocal decimal.Decimal `json:"amount_local"`
	Percentage  decimal.Decimal `json:"percentage_applied"`
}

func (req createExpenseRequest) toInput(actorID int64) (CreateExpenseInput, error) {
	incurred, err := time.Parse("2006-01-02", req.IncurredDate)
	if err != nil {
		return CreateExpenseInput{}, err
	}
	return CreateExpenseInput{
		Description:  req.Description,
		Category:     req.Category,
		TotalUSD:     req.TotalUSD,
		IncurredDate: incurred,
		Selection: registry.Selection{
			Kind:         registry.SelectionKind(req.Selection.Kind),
			Tower:        req.Selection.Tower,
			Floor:        req.Selection.Floor,
			ApartmentIDs: req.Selection.ApartmentIDs,
		},
		EqualSplit: req.EqualSplit,
		ActorID:    actorID,
	}, nil
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput(actorFrom(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "incurred_date must be YYYY-MM-DD")
		return
	}

	expense, err := h.service.CreateExpense(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(expense, nil))
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expense, allocs, err := h.service.GetExpense(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(expense, allocs))
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	allocs, err := h.service.Distribute(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]allocationView, len(allocs))
	for i, a := range allocs {
		views[i] = allocationView{ApartmentID: a.ApartmentID, AmountUSD: a.AmountUSD, AmountLocal: a.AmountLocal, Percentage: a.PercentageApplied}
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) replaceExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput(actorFrom(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "incurred_date must be YYYY-MM-DD")
		return
	}

	expense, err := h.service.ReplaceExpense(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(expense, nil))
}

type chargeResponse struct {
	ID           int64           `json:"id"`
	ExpenseID    int64           `json:"expense_id"`
	ApartmentID  int64           `json:"apartment_id"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	AmountLocal  decimal.Decimal `json:"amount_local"`
	BalanceUSD   decimal.Decimal `json:"balance_usd"`
	BalanceLocal decimal.Decimal `json:"balance_local"`
	DueDate      string          `json:"due_date"`
	Status       ChargeStatus    `json:"status"`
	Payments     []paymentView   `json:"payments,omitempty"`
}

type paymentView struct {
	ID            int64           `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	ResidentID    int64           `json:"resident_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Currency      money.Currency  `json:"currency"`
	RateApplied   decimal.Decimal `json:"rate_applied"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	AmountLocal   decimal.Decimal `json:"amount_local"`
	Status        PaymentStatus   `json:"status"`
}

func (h *Handler) getCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	charge, payments, err := h.service.GetCharge(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := chargeResponse{
		ID:           charge.ID,
		ExpenseID:    charge.ExpenseID,
		ApartmentID:  charge.ApartmentID,
		AmountUSD:    charge.AmountUSD,
		AmountLocal:  charge.AmountLocal,
		BalanceUSD:   charge.BalanceUSD,
		BalanceLocal: charge.BalanceLocal,
		DueDate:      charge.DueDate.Format("2006-01-02"),
		Status:       charge.Status,
	}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, toPaymentView(p))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type registerPaymentRequest struct {
	ChargeID   int64           `json:"charge_id" validate:"required,gt=0"`
	ResidentID int64           `json:"resident_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"required,oneof=USD LOCAL"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	payment, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		ChargeID:   req.ChargeID,
		ResidentID: req.ResidentID,
		Amount:     req.Amount,
		Currency:   money.Currency(req.Currency),
		ActorID:    actorFrom(r),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentView(payment))
}

type validatePaymentRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=ACCEPTED PARTIALLY_ACCEPTED REJECTED"`
}

func (h *Handler) validatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req validatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	payment, err := h.service.ValidatePayment(r.Context(), id, ValidationOutcome(req.Outcome), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentView(payment))
}

func toExpenseResponse(e Expense, allocs []Allocation) expenseResponse {
	resp := expenseResponse{
		ID:           e.ID,
		Description:  e.Description,
		Category:     e.Category,
		TotalUSD:     e.TotalUSD,
		TotalLocal:   e.TotalLocal,
		RateUsed:     e.RateUsed,
		IncurredDate: e.IncurredDate.Format("2006-01-02"),
		Status:       e.Status,
	}
	for _, a := range allocs {
		resp.Allocations = append(resp.Allocations, allocationView{
			ApartmentID: a.ApartmentID,
			AmountUSD:   a.AmountUSD,
			AmountLocal: a.AmountLocal,
			Percentage:  a.PercentageApplied,
		})
	}
	return resp
}

func toPaymentView(p Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		ReceiptNumber: p.ReceiptNumber,
		ResidentID:    p.ResidentID,
		AmountPaid:    p.AmountPaid,
		Currency:      p.Currency,
		RateApplied:   p.RateApplied,
		AmountUSD:     p.AmountUSD,
		AmountLocal:   p.AmountLocal,
		Status:        p.Status,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// actorFrom reads the acting administrator id propagated by the auth layer.
// Authentication itself lives outside this service.
func actorFrom(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
