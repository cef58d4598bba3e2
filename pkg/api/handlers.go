package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type createAccountRequest struct {
	Number string `json:"number"`
	Owner  string `json:"owner"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	To     int64           `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type balanceResponse struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	if s.status != nil {
		response["components"] = s.status()
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	account, err := s.accounts.CreateAccount(ctx, req.Number, req.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// The account exists either way; a cold view cache only costs a lookup.
	if err := s.views.Put(ctx, account.View()); err != nil {
		logging.FromContext(ctx).Warn("view cache put failed",
			zap.Int64("account_id", account.ID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	view, err := s.views.Account(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	balance, err := s.ledger.Balance(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}

func (s *Server) handleTransferTargets(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	targets, err := s.ledger.TransferTargets(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	history, err := s.ledger.History(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.ledger.Withdraw)
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64, decimal.Decimal) (ledger.Transaction, error)) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := apply(ctx, id, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := s.ledger.Transfer(ctx, id, req.To, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	user, err := s.users.Add(ctx, req.Username, req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

// accountID parses the {id} route variable. The route pattern guarantees
// digits; values past int64 are rejected here.
func (s *Server) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid account id %q", raw))
		return 0, false
	}
	return id, true
}

// decode reads a single JSON object into dst and answers 400 when the body
// is malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		msg := "malformed request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("%s: %v", msg, err))
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must hold a single JSON object")
		return false
	}
	return true
}
