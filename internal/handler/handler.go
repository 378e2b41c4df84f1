// Package handler содержит HTTP-обработчики API сервиса джобмаркет.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	"github.com/mmeshcher/jobmarket-system/internal/middleware"
	"github.com/mmeshcher/jobmarket-system/internal/model"
	"github.com/mmeshcher/jobmarket-system/internal/repository"
	"github.com/mmeshcher/jobmarket-system/internal/validation"
)

// defaultBestClientsLimit — число клиентов в выдаче best-clients по умолчанию.
const defaultBestClientsLimit = 2

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetContractByID(ctx context.Context, profileID, contractID int64) (*model.Contract, error)
	GetContractsByProfile(ctx context.Context, profileID int64, includeTerminated bool) ([]model.Contract, error)
	GetUnpaidJobs(ctx context.Context, profileID int64) ([]model.Job, error)
	PayJob(ctx context.Context, payerID, jobID int64) error
	DepositToPeer(ctx context.Context, senderID, recipientID int64, amount float64) error
	BestProfession(ctx context.Context, start, end *time.Time) (*model.ProfessionEarnings, error)
	BestClients(ctx context.Context, start, end *time.Time, limit int) ([]model.ClientPayments, error)
}

// Handler реализует HTTP-обработчики API сервиса джобмаркет.
type Handler struct {
	service  Service
	logger   *zap.Logger
	identity *middleware.IdentityMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, identity *middleware.IdentityMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		identity: identity,
	}
}

type errorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{OK: false, Code: code, Message: message})
}

func (h *Handler) callerProfile(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	profile, ok := middleware.GetProfileFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Profile is not resolved")
		return nil, false
	}
	return profile, true
}

type profileResponse struct {
	ID         int64   `json:"id"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Profession string  `json:"profession,omitempty"`
	Role       string  `json:"role"`
	Balance    float64 `json:"balance"`
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, profileResponse{
		ID:         profile.ID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Profession: profile.Profession,
		Role:       string(profile.Role),
		Balance:    centsToAmount(profile.BalanceCents),
	})
}

type contractResponse struct {
	ID         int64  `json:"id"`
	Terms      string `json:"terms"`
	Status     string `json:"status"`
	Client     string `json:"client"`
	Contractor string `json:"contractor"`
	Role       string `json:"role,omitempty"`
}

func contractToResponse(c *model.Contract, profileID int64, withRole bool) contractResponse {
	resp := contractResponse{
		ID:         c.ID,
		Terms:      c.Terms,
		Status:     string(c.Status),
		Client:     c.ClientName,
		Contractor: c.ContractorName,
	}
	if withRole {
		if c.ClientID == profileID {
			resp.Role = string(model.ProfileRoleClient)
		} else {
			resp.Role = string(model.ProfileRoleContractor)
		}
	}
	return resp
}

// GetContract возвращает один контракт текущего пользователя.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	contractID, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_contract_id", "Contract id must be a non-negative integer")
		return
	}

	contract, err := h.service.GetContractByID(r.Context(), profile.ID, contractID)
	if err != nil {
		if errors.Is(err, repository.ErrContractNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Contract not found")
			return
		}
		h.logger.Error("get contract error", zap.Error(err), zap.Int64("contractID", contractID))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The transaction failed")
		return
	}

	h.writeJSON(w, http.StatusOK, contractToResponse(contract, profile.ID, false))
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request, includeTerminated bool) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	contracts, err := h.service.GetContractsByProfile(r.Context(), profile.ID, includeTerminated)
	if err != nil {
		h.logger.Error("list contracts error", zap.Error(err), zap.Int64("profileID", profile.ID))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The transaction failed")
		return
	}

	resp := make([]contractResponse, 0, len(contracts))
	for i := range contracts {
		resp = append(resp, contractToResponse(&contracts[i], profile.ID, true))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetContracts возвращает нерасторгнутые контракты текущего пользователя.
func (h *Handler) GetContracts(w http.ResponseWriter, r *http.Request) {
	h.listContracts(w, r, false)
}

// GetAllContracts возвращает все контракты текущего пользователя.
func (h *Handler) GetAllContracts(w http.ResponseWriter, r *http.Request) {
	h.listContracts(w, r, true)
}

type jobResponse struct {
	ID          int64   `json:"id"`
	ContractID  int64   `json:"contractId"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CreatedAt   string  `json:"createdAt"`
}

// GetUnpaidJobs возвращает неоплаченные работы по активным контрактам текущего пользователя.
func (h *Handler) GetUnpaidJobs(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	jobs, err := h.service.GetUnpaidJobs(r.Context(), profile.ID)
	if err != nil {
		h.logger.Error("get unpaid jobs error", zap.Error(err), zap.Int64("profileID", profile.ID))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The transaction failed")
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, jobResponse{
			ID:          j.ID,
			ContractID:  j.ContractID,
			Description: j.Description,
			Price:       centsToAmount(j.PriceCents),
			CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// PayJob оплачивает работу с баланса текущего пользователя.
func (h *Handler) PayJob(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	jobID, err := validation.ParseID(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_job_id", "Job id must be a non-negative integer")
		return
	}

	if err := h.service.PayJob(r.Context(), profile.ID, jobID); err != nil {
		h.writePayJobError(w, err, jobID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) writePayJobError(w http.ResponseWriter, err error, jobID int64) {
	var alreadyPaid *repository.AlreadyPaidError

	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "job_not_found", "Job could not be found")
	case errors.Is(err, repository.ErrContractTerminated):
		h.writeError(w, http.StatusBadRequest, "contract_terminated", "Contract has been terminated")
	case errors.As(err, &alreadyPaid):
		h.writeError(w, http.StatusBadRequest, "already_paid",
			"Job was already paid on "+formatDateTime(alreadyPaid.PaymentDate))
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "insuffucient_funds", "Not enough funds to complete the transaction")
	default:
		h.logger.Error("pay job transaction error", zap.Error(err), zap.Int64("jobID", jobID))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The sql transaction failed")
	}
}

type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit переводит сумму с баланса текущего пользователя на баланс другого профиля.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	recipientID, err := validation.ParseID(chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_user_id", "User id must be a non-negative integer")
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", "amount: must be a positive number")
		return
	}

	if err := h.service.DepositToPeer(r.Context(), profile.ID, recipientID, req.Amount); err != nil {
		h.writeDepositError(w, err, profile.ID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Transfer successful"})
}

func (h *Handler) writeDepositError(w http.ResponseWriter, err error, senderID int64) {
	var tooLarge *repository.DepositTooLargeError

	switch {
	case errors.Is(err, validation.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", "amount: must be a positive number")
	case errors.Is(err, repository.ErrDepositToSelf):
		h.writeError(w, http.StatusForbidden, "deposit_to_self_forbidden", "Cannot add to your own balance")
	case errors.Is(err, repository.ErrClientNotFound):
		h.writeError(w, http.StatusNotFound, "client_not_found",
			"The client account you're trying to deposit money into does not exist")
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "insuffucient_funds", "Not enough funds to complete the transaction")
	case errors.As(err, &tooLarge):
		owed := tooLarge.TotalOwedCents
		h.writeError(w, http.StatusBadRequest, "deposit_too_large",
			"Cannot deposit more than 25% ("+formatUSD(owed/4)+") of your total owed ("+formatUSD(owed)+")")
	default:
		h.logger.Error("deposit transaction error", zap.Error(err), zap.Int64("senderID", senderID))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The sql transaction failed")
	}
}

// parseRangeFromQuery разбирает границы диапазона дат из query-параметров,
// сам записывая ответ об ошибке валидации.
func (h *Handler) parseRangeFromQuery(w http.ResponseWriter, r *http.Request) (start, end *time.Time, ok bool) {
	start, end, err := validation.ParseDateRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrInvalidStartTime):
			h.writeError(w, http.StatusBadRequest, "invalid_start_time", "Start time is not a valid date")
		case errors.Is(err, validation.ErrInvalidEndTime):
			h.writeError(w, http.StatusBadRequest, "invalid_end_time", "End time is not a valid date")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid_range", "End time cannot be before start time")
		}
		return nil, nil, false
	}
	return start, end, true
}

type professionResponse struct {
	Profession  string  `json:"profession"`
	TotalEarned float64 `json:"totalEarned"`
}

// BestProfession возвращает профессию с наибольшей суммой выплат за период.
func (h *Handler) BestProfession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerProfile(w, r); !ok {
		return
	}

	start, end, ok := h.parseRangeFromQuery(w, r)
	if !ok {
		return
	}

	best, err := h.service.BestProfession(r.Context(), start, end)
	if err != nil {
		if errors.Is(err, repository.ErrNoPaidJobs) {
			h.writeError(w, http.StatusNotFound, "no_paid_jobs", "No paid jobs were found in that range")
			return
		}
		h.logger.Error("best profession error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The transaction failed")
		return
	}

	h.writeJSON(w, http.StatusOK, professionResponse{
		Profession:  best.Profession,
		TotalEarned: centsToAmount(best.TotalEarnedCents),
	})
}

type clientPaymentsResponse struct {
	ID       int64   `json:"id"`
	FullName string  `json:"fullName"`
	Paid     float64 `json:"paid"`
}

// BestClients возвращает клиентов с наибольшей суммой оплаченных работ за период.
func (h *Handler) BestClients(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerProfile(w, r); !ok {
		return
	}

	start, end, ok := h.parseRangeFromQuery(w, r)
	if !ok {
		return
	}

	limit, err := validation.ParseLimit(r.URL.Query().Get("limit"), defaultBestClientsLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit value")
		return
	}

	clients, err := h.service.BestClients(r.Context(), start, end, limit)
	if err != nil {
		h.logger.Error("best clients error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "transaction_failed", "The transaction failed")
		return
	}

	resp := make([]clientPaymentsResponse, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientPaymentsResponse{
			ID:       c.ID,
			FullName: c.FullName,
			Paid:     centsToAmount(c.PaidCents),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
