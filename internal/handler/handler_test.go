package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/jobmarket-system/internal/middleware"
	"github.com/mmeshcher/jobmarket-system/internal/model"
	"github.com/mmeshcher/jobmarket-system/internal/repository"
	"github.com/mmeshcher/jobmarket-system/internal/validation"
)

type stubService struct {
	contract    *model.Contract
	contractErr error

	contracts    []model.Contract
	contractsErr error

	unpaidJobs    []model.Job
	unpaidJobsErr error

	payErr error

	depositErr error

	bestProfession    *model.ProfessionEarnings
	bestProfessionErr error

	bestClients    []model.ClientPayments
	bestClientsErr error
}

func (s *stubService) GetContractByID(ctx context.Context, profileID, contractID int64) (*model.Contract, error) {
	return s.contract, s.contractErr
}

func (s *stubService) GetContractsByProfile(ctx context.Context, profileID int64, includeTerminated bool) ([]model.Contract, error) {
	return s.contracts, s.contractsErr
}

func (s *stubService) GetUnpaidJobs(ctx context.Context, profileID int64) ([]model.Job, error) {
	return s.unpaidJobs, s.unpaidJobsErr
}

func (s *stubService) PayJob(ctx context.Context, payerID, jobID int64) error {
	return s.payErr
}

func (s *stubService) DepositToPeer(ctx context.Context, senderID, recipientID int64, amount float64) error {
	return s.depositErr
}

func (s *stubService) BestProfession(ctx context.Context, start, end *time.Time) (*model.ProfessionEarnings, error) {
	return s.bestProfession, s.bestProfessionErr
}

func (s *stubService) BestClients(ctx context.Context, start, end *time.Time, limit int) ([]model.ClientPayments, error) {
	return s.bestClients, s.bestClientsErr
}

type stubProfiles struct {
	profile *model.Profile
}

func (s *stubProfiles) GetProfileByID(ctx context.Context, id int64) (*model.Profile, error) {
	if s.profile == nil || s.profile.ID != id {
		return nil, repository.ErrProfileNotFound
	}
	return s.profile, nil
}

func testProfile() *model.Profile {
	return &model.Profile{
		ID:           1,
		FirstName:    "Harry",
		LastName:     "Potter",
		Role:         model.ProfileRoleClient,
		BalanceCents: 115000,
	}
}

func newTestRouter(t *testing.T, svc Service, profile *model.Profile) http.Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	identity := middleware.NewIdentityMiddleware(&stubProfiles{profile: profile})
	h := NewHandler(svc, logger, identity)

	return h.SetupRouter()
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("profile_id", "1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestPayJob_Success(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/5/pay", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("ok = %v, want true", resp["ok"])
	}
}

func TestPayJob_InvalidJobID(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/abc/pay", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_job_id" {
		t.Fatalf("code = %q, want invalid_job_id", resp.Code)
	}
}

func TestPayJob_NotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{payErr: repository.ErrJobNotFound}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/404/pay", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec); resp.Code != "job_not_found" {
		t.Fatalf("code = %q, want job_not_found", resp.Code)
	}
}

func TestPayJob_ContractTerminated(t *testing.T) {
	router := newTestRouter(t, &stubService{payErr: repository.ErrContractTerminated}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/5/pay", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "contract_terminated" {
		t.Fatalf("code = %q, want contract_terminated", resp.Code)
	}
}

func TestPayJob_AlreadyPaidCarriesDate(t *testing.T) {
	paidAt := time.Date(2022, 8, 14, 23, 11, 26, 0, time.UTC)
	router := newTestRouter(t, &stubService{
		payErr: &repository.AlreadyPaidError{PaymentDate: paidAt},
	}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/5/pay", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	resp := decodeError(t, rec)
	if resp.Code != "already_paid" {
		t.Fatalf("code = %q, want already_paid", resp.Code)
	}
	if !strings.Contains(resp.Message, "Aug 14, 2022") {
		t.Fatalf("message %q does not contain payment date", resp.Message)
	}
}

func TestPayJob_InsufficientFunds(t *testing.T) {
	router := newTestRouter(t, &stubService{payErr: repository.ErrInsufficientFunds}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/5/pay", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "insuffucient_funds" {
		t.Fatalf("code = %q, want insuffucient_funds", resp.Code)
	}
}

func TestPayJob_UnexpectedErrorIsOpaque(t *testing.T) {
	router := newTestRouter(t, &stubService{payErr: context.DeadlineExceeded}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/jobs/5/pay", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	resp := decodeError(t, rec)
	if resp.Code != "transaction_failed" {
		t.Fatalf("code = %q, want transaction_failed", resp.Code)
	}
	if strings.Contains(resp.Message, "deadline") {
		t.Fatalf("message %q leaks internal error detail", resp.Message)
	}
}

func TestDeposit_Success(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/2", `{"amount": 150}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true || resp["message"] != "Transfer successful" {
		t.Fatalf("response = %v, want ok with message", resp)
	}
}

func TestDeposit_InvalidUserID(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/xyz", `{"amount": 150}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_user_id" {
		t.Fatalf("code = %q, want invalid_user_id", resp.Code)
	}
}

func TestDeposit_MalformedBody(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/2", `{"amount": `)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_request_body" {
		t.Fatalf("code = %q, want invalid_request_body", resp.Code)
	}
}

func TestDeposit_NonPositiveAmount(t *testing.T) {
	router := newTestRouter(t, &stubService{depositErr: validation.ErrInvalidAmount}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/2", `{"amount": -5}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_request_body" {
		t.Fatalf("code = %q, want invalid_request_body", resp.Code)
	}
}

func TestDeposit_ToSelfForbidden(t *testing.T) {
	router := newTestRouter(t, &stubService{depositErr: repository.ErrDepositToSelf}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/1", `{"amount": 150}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if resp := decodeError(t, rec); resp.Code != "deposit_to_self_forbidden" {
		t.Fatalf("code = %q, want deposit_to_self_forbidden", resp.Code)
	}
}

func TestDeposit_ClientNotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{depositErr: repository.ErrClientNotFound}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/99", `{"amount": 150}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec); resp.Code != "client_not_found" {
		t.Fatalf("code = %q, want client_not_found", resp.Code)
	}
}

func TestDeposit_TooLargeIncludesOwedAndCap(t *testing.T) {
	router := newTestRouter(t, &stubService{
		depositErr: &repository.DepositTooLargeError{TotalOwedCents: 84000},
	}, testProfile())

	rec := doRequest(t, router, http.MethodPost, "/balances/deposit/2", `{"amount": 300}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	resp := decodeError(t, rec)
	if resp.Code != "deposit_too_large" {
		t.Fatalf("code = %q, want deposit_too_large", resp.Code)
	}
	if !strings.Contains(resp.Message, "$210.00") || !strings.Contains(resp.Message, "$840.00") {
		t.Fatalf("message %q must include the cap and the owed total", resp.Message)
	}
}

func TestBestProfession_Success(t *testing.T) {
	router := newTestRouter(t, &stubService{
		bestProfession: &model.ProfessionEarnings{Profession: "Programmer", TotalEarnedCents: 268320},
	}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-profession", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp professionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Profession != "Programmer" || resp.TotalEarned != 2683.20 {
		t.Fatalf("response = %+v, want Programmer / 2683.20", resp)
	}
}

func TestBestProfession_NoPaidJobs(t *testing.T) {
	router := newTestRouter(t, &stubService{bestProfessionErr: repository.ErrNoPaidJobs}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-profession", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec); resp.Code != "no_paid_jobs" {
		t.Fatalf("code = %q, want no_paid_jobs", resp.Code)
	}
}

func TestBestProfession_InvalidRange(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-profession?start=2022-01-01&end=2020-01-01", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_range" {
		t.Fatalf("code = %q, want invalid_range", resp.Code)
	}
}

func TestBestClients_InvalidLimit(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-clients?limit=many", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_limit" {
		t.Fatalf("code = %q, want invalid_limit", resp.Code)
	}
}

func TestBestClients_InvalidStartTime(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-clients?start=bogus", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_start_time" {
		t.Fatalf("code = %q, want invalid_start_time", resp.Code)
	}
}

func TestBestClients_JSONResponse(t *testing.T) {
	router := newTestRouter(t, &stubService{
		bestClients: []model.ClientPayments{
			{ID: 4, FullName: "Ash Kethcum", PaidCents: 200020},
			{ID: 1, FullName: "Harry Potter", PaidCents: 44200},
		},
	}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/admin/best-clients?limit=2", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []clientPaymentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
	if resp[0].FullName != "Ash Kethcum" || resp[0].Paid != 2000.20 {
		t.Fatalf("first client = %+v", resp[0])
	}
}

func TestMe_ReturnsCallerProfile(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/me", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp profileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || resp.Balance != 1150 {
		t.Fatalf("profile = %+v, want id 1 with balance 1150", resp)
	}
}

func TestUnknownProfileIsUnauthorized(t *testing.T) {
	router := newTestRouter(t, &stubService{}, testProfile())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("profile_id", "42")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetContracts_RoleComputed(t *testing.T) {
	router := newTestRouter(t, &stubService{
		contracts: []model.Contract{
			{ID: 1, ClientID: 1, ContractorID: 5, Status: model.ContractStatusInProgress, ClientName: "Harry Potter", ContractorName: "John Lenon"},
			{ID: 2, ClientID: 3, ContractorID: 1, Status: model.ContractStatusNew, ClientName: "John Snow", ContractorName: "Harry Potter"},
		},
	}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/contracts", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []contractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
	if resp[0].Role != "client" || resp[1].Role != "contractor" {
		t.Fatalf("roles = %q, %q, want client, contractor", resp[0].Role, resp[1].Role)
	}
}

func TestGetContract_NotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{contractErr: repository.ErrContractNotFound}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/contracts/9", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec); resp.Code != "not_found" {
		t.Fatalf("code = %q, want not_found", resp.Code)
	}
}

func TestGetUnpaidJobs_JSONResponse(t *testing.T) {
	created := time.Date(2022, 8, 10, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, &stubService{
		unpaidJobs: []model.Job{
			{ID: 3, ContractID: 2, Description: "work", PriceCents: 20100, CreatedAt: created},
		},
	}, testProfile())

	rec := doRequest(t, router, http.MethodGet, "/jobs/unpaid", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Price != 201 {
		t.Fatalf("jobs = %+v, want one job with price 201", resp)
	}
}
