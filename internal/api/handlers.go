package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/models"
	"github.com/punchamoorthee/vtuledger/internal/service"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Options struct {
	Ledger   store.Ledger
	Executor *service.Executor
	Deposits *service.Deposits
	Sweeper  *service.Sweeper

	Auth *JWTVerifier
	// DevOwnerHeader trusts X-Owner-ID when Auth is nil.
	DevOwnerHeader bool
	SweepSecret    string

	Redis      redis.UniversalClient
	RateLimit  int
	RateWindow time.Duration

	Logger *zap.Logger
}

// Pinger is implemented by ledgers backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthPingTimeout = 2 * time.Second

type Handler struct {
	ledger      store.Ledger
	db          Pinger
	executor    *service.Executor
	deposits    *service.Deposits
	sweeper     *service.Sweeper
	sweepSecret string
	log         *zap.Logger
}

// NewRouter wires every route. Wallet routes require an authenticated owner.
func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Handler{
		ledger:      opts.Ledger,
		executor:    opts.Executor,
		deposits:    opts.Deposits,
		sweeper:     opts.Sweeper,
		sweepSecret: opts.SweepSecret,
		log:         opts.Logger.Named("api"),
	}
	if p, ok := opts.Ledger.(Pinger); ok {
		h.db = p
	}

	r := mux.NewRouter()
	r.Use(instrument(h.log))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/internal/sweep", h.SweepHandler).Methods("GET", "POST")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(requireOwner(opts.Auth, opts.DevOwnerHeader))
	apiV1.Use(rateLimit(opts.Redis, opts.RateLimit, opts.RateWindow, h.log))
	apiV1.HandleFunc("/wallets", h.CreateWalletHandler).Methods("POST")
	apiV1.HandleFunc("/wallet", h.GetWalletHandler).Methods("GET")
	apiV1.HandleFunc("/transactions", h.ListTransactionsHandler).Methods("GET")
	apiV1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods("GET")
	apiV1.HandleFunc("/purchases", h.CreatePurchaseHandler).Methods("POST")
	apiV1.HandleFunc("/deposits", h.CreateDepositHandler).Methods("POST")
	apiV1.HandleFunc("/deposits/{reference}/confirm", h.ConfirmDepositHandler).Methods("POST")
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn("health check: database unreachable", zap.Error(err))
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	wallet, err := h.ledger.CreateWallet(r.Context(), owner)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toWallet(wallet))
}

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	wallet, err := h.ledger.GetWallet(r.Context(), owner)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toWallet(wallet))
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	txs, err := h.ledger.ListTransactions(r.Context(), owner, limit)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	out := models.TransactionList{Transactions: make([]models.Transaction, 0, len(txs))}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, toTransaction(tx))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// GetTransactionHandler returns one transaction. With ?refresh=1 a pending
// purchase is checked against the provider first.
func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	id := mux.Vars(r)["id"]

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		res, err := h.executor.CheckStatus(r.Context(), owner, id)
		if err != nil {
			h.respondWithDomainError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, toPurchase(res))
		return
	}

	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err == nil && tx.OwnerID != owner {
		err = domain.ErrTransactionNotFound
	}
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toTransaction(tx))
}

func (h *Handler) CreatePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	// Idempotency-Key is an alias for the body reference.
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		if req.Reference != "" && req.Reference != key {
			respondWithError(w, http.StatusUnprocessableEntity, "Idempotency-Key header does not match body reference")
			return
		}
		req.Reference = key
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := h.executor.Execute(r.Context(), service.ExecuteRequest{
		OwnerID:   owner,
		Kind:      req.Kind,
		Amount:    amount,
		Recipient: req.Recipient,
		Reference: req.Reference,
		Params:    req.Params,
	})
	switch {
	case errors.Is(err, domain.ErrProviderDeclined):
		respondWithJSON(w, http.StatusUnprocessableEntity, toPurchase(res))
		return
	case err != nil:
		h.respondWithDomainError(w, err)
		return
	}

	code := http.StatusCreated
	switch {
	case res.Status == service.ResultProcessing:
		code = http.StatusAccepted
	case res.Replayed:
		code = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/transactions/"+res.Transaction.ID)
	respondWithJSON(w, code, toPurchase(res))
}

func (h *Handler) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	var req models.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pp, err := h.deposits.Initiate(r.Context(), owner, amount, req.Reference)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toDeposit(pp))
}

func (h *Handler) ConfirmDepositHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	pp, err := h.deposits.Confirm(r.Context(), owner, mux.Vars(r)["reference"])
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toDeposit(pp))
}

// SweepHandler is the scheduler trigger. It is disabled when no secret is set.
func (h *Handler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if h.sweepSecret == "" || h.sweeper == nil {
		respondWithError(w, http.StatusForbidden, "sweep trigger disabled")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.sweepSecret)) != 1 {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rep := h.sweeper.Run(context.WithoutCancel(r.Context()))
	respondWithJSON(w, http.StatusOK, models.SweepResponse{
		ProcessedCount: rep.Processed,
		ErrorCount:     rep.Errors,
	})
}

func (h *Handler) respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRequest):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrReferenceMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Reference reused with a different request")
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondWithError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, domain.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, "Wallet not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		respondWithError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, domain.ErrPaymentNotFound):
		respondWithError(w, http.StatusNotFound, "Deposit not found")
	case errors.Is(err, domain.ErrWalletInactive):
		respondWithError(w, http.StatusForbidden, "Wallet is inactive")
	case errors.Is(err, domain.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, try again later")
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.log.Error("storage unavailable", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Temporary failure, nothing was applied; retry with the same reference")
	case errors.Is(err, domain.ErrInternal):
		h.log.Error("internal error", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	default:
		h.log.Error("unhandled error", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func toWallet(w domain.Wallet) models.Wallet {
	return models.Wallet{OwnerID: w.OwnerID, Balance: domain.FormatAmount(w.Balance), Active: w.Active}
}

func toTransaction(tx domain.Transaction) models.Transaction {
	return models.Transaction{
		ID:                tx.ID,
		Kind:              tx.Kind,
		Amount:            domain.FormatAmount(tx.Amount),
		Status:            tx.Status,
		Reference:         tx.Reference,
		ExternalReference: tx.ExternalReference,
		Description:       tx.Description,
		RefundOf:          tx.RefundOf,
		CreatedAt:         tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         tx.UpdatedAt.Format(time.RFC3339),
	}
}

func toPurchase(res service.ExecuteResult) models.PurchaseResponse {
	return models.PurchaseResponse{
		Status:      string(res.Status),
		Message:     res.Message,
		Replayed:    res.Replayed,
		Balance:     domain.FormatAmount(res.NewBalance),
		Transaction: toTransaction(res.Transaction),
	}
}

func toDeposit(pp domain.PendingPayment) models.Deposit {
	return models.Deposit{
		Reference:     pp.Reference,
		Amount:        domain.FormatAmount(pp.Amount),
		Status:        pp.Status,
		Attempts:      pp.Attempts,
		TransactionID: pp.TransactionID,
	}
}
