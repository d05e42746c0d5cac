package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentvault/agentvault/internal/domain/policy"
	"github.com/agentvault/agentvault/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// Handler is the thin JSON adapter over the policy and evaluator services.
// Authentication is the gateway's job; nothing here inspects credentials.
type Handler struct {
	policies  *service.PolicyService
	evaluator *service.EvaluatorService
	metrics   *Metrics
	validate  *validator.Validate
	logger    *slog.Logger
	version   string
}

// NewHandler creates the HTTP handler.
func NewHandler(
	policies *service.PolicyService,
	evaluator *service.EvaluatorService,
	metrics *Metrics,
	logger *slog.Logger,
	version string,
) *Handler {
	return &Handler{
		policies:  policies,
		evaluator: evaluator,
		metrics:   metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		version:   version,
	}
}

// Routes builds the route table with middleware applied.
func (h *Handler) Routes(promHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/policies", h.handleCreatePolicy)
	mux.HandleFunc("GET /v1/policies/{id}", h.handleGetPolicy)
	mux.HandleFunc("PUT /v1/policies/{id}", h.handleUpdatePolicy)
	mux.HandleFunc("POST /v1/policies/{id}/activate", h.handleActivatePolicy)
	mux.HandleFunc("POST /v1/policies/{id}/deactivate", h.handleDeactivatePolicy)
	mux.HandleFunc("GET /v1/wallets/{walletId}/policies", h.handleListPolicies)
	mux.HandleFunc("POST /v1/wallets/{walletId}/evaluate", h.handleEvaluate)

	mux.Handle("GET /healthz", HealthHandler(h.version))
	if promHandler == nil {
		promHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", promHandler)

	var handler http.Handler = mux
	handler = MetricsMiddleware(h.metrics)(handler)
	handler = RequestIDMiddleware(h.logger)(handler)
	return handler
}

// createPolicyRequest is the JSON request body for creating a policy.
type createPolicyRequest struct {
	WalletID string       `json:"wallet_id" validate:"required"`
	Name     string       `json:"name" validate:"required"`
	Rules    policy.Rules `json:"rules" validate:"required"`
}

// updatePolicyRequest is the JSON request body for updating a policy.
// Omitted fields are left unchanged; provided rules replace the list
// wholesale.
type updatePolicyRequest struct {
	Name  *string      `json:"name,omitempty"`
	Rules policy.Rules `json:"rules,omitempty"`
}

// evaluateRequest is the JSON request body for a transaction evaluation.
// Amount crosses this boundary as a decimal string, never a JSON number, so
// no intermediate can round it through a float.
type evaluateRequest struct {
	Amount             string           `json:"amount" validate:"required"`
	TokenMint          string           `json:"token_mint" validate:"required"`
	DestinationAddress string           `json:"destination_address"`
	ProgramIDs         []string         `json:"program_ids"`
	Instructions       []map[string]any `json:"instructions,omitempty"`
}

// handleCreatePolicy creates a new policy from the request body.
// POST /v1/policies
func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validateRequest(w, &req) {
		return
	}

	p, err := h.policies.Create(r.Context(), req.WalletID, req.Name, req.Rules)
	if err != nil {
		h.respondServiceError(w, r, err, "create policy")
		return
	}
	h.respondJSON(w, http.StatusCreated, p)
}

// handleGetPolicy returns a single policy.
// GET /v1/policies/{id}
func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err, "get policy")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// handleUpdatePolicy updates name and/or rules of an existing policy.
// PUT /v1/policies/{id}
func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	p, err := h.policies.Update(r.Context(), r.PathValue("id"), service.PolicyUpdate{
		Name:  req.Name,
		Rules: req.Rules,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "update policy")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// handleActivatePolicy marks a policy active.
// POST /v1/policies/{id}/activate
func (h *Handler) handleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err, "activate policy")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// handleDeactivatePolicy marks a policy inactive.
// POST /v1/policies/{id}/deactivate
func (h *Handler) handleDeactivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Deactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err, "deactivate policy")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// handleListPolicies returns all policies for a wallet, active or not.
// GET /v1/wallets/{walletId}/policies
func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.ListForWallet(r.Context(), r.PathValue("walletId"))
	if err != nil {
		h.respondServiceError(w, r, err, "list policies")
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	h.respondJSON(w, http.StatusOK, policies)
}

// handleEvaluate evaluates a proposed transaction against the wallet's
// active policies. This is the fail-secure boundary: an internal failure to
// decide is substituted with a synthesized deny, never surfaced as an error
// the caller might misread as "no rules apply".
// POST /v1/wallets/{walletId}/evaluate
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")

	var req evaluateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validateRequest(w, &req) {
		return
	}

	amount, err := policy.ParseAmount(req.Amount)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("amount: %v", err))
		return
	}

	tx := &policy.TransactionDetails{
		WalletID:           walletID,
		Amount:             amount,
		TokenMint:          req.TokenMint,
		DestinationAddress: req.DestinationAddress,
		ProgramIDs:         req.ProgramIDs,
		Instructions:       req.Instructions,
	}

	start := time.Now()
	ev, err := h.evaluator.EvaluateTransaction(r.Context(), walletID, tx)
	h.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		h.logger.Error("evaluation failed, substituting fail-secure deny",
			"wallet_id", walletID,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		h.metrics.FailSecureTotal.Inc()
		ev = service.FailSecureEvaluation(walletID)
	}

	h.metrics.EvaluationsTotal.WithLabelValues(string(ev.Decision)).Inc()
	h.respondJSON(w, http.StatusOK, ev)
}

// decodeBody decodes a JSON request body, replying 400 on malformed input.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// validateRequest runs struct-tag validation, replying 400 with field-level
// detail on failure.
func (h *Handler) validateRequest(w http.ResponseWriter, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, formatValidationErrors(err))
		return false
	}
	return true
}

// respondServiceError maps service errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, policy.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "policy not found")
	default:
		h.logger.Error("request failed",
			"op", op,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, errorResponse{Error: msg})
}

// formatValidationErrors converts validator errors to user-friendly messages.
func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Namespace()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Namespace(), e.Tag()))
			}
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}
