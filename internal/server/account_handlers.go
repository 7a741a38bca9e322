package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/auth"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/utils"
	"github.com/shopspring/decimal"
)

// userProfile is what an account may change about itself.
type userProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (srv *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := srv.decodeValid(r, &req, false); err != nil {
		srv.writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		srv.writeError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	acc, err := srv.accounts.CreateAccount(r.Context(), model.NewAccount{
		Name:  req.Name,
		Email: req.Email,
		Role:  model.RoleUser,
	}, hash)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	srv.deps.Logger.Infow("account registered", "account_id", acc.ID)
	srv.issueToken(w, r, acc)
}

func (srv *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := srv.decodeValid(r, &creds, false); err != nil {
		srv.writeError(w, r, err)
		return
	}

	acc, hash, err := srv.accounts.GetAccountByEmail(r.Context(), creds.Email)
	if err != nil {
		if errors.Is(err, errs.ErrAccountNotFound) {
			srv.writeError(w, r, fmt.Errorf("%w: invalid credentials", errs.ErrInvalidToken))
			return
		}
		srv.writeError(w, r, err)
		return
	}

	if !auth.CheckPassword(hash, creds.Password) {
		srv.writeError(w, r, fmt.Errorf("%w: invalid credentials", errs.ErrInvalidToken))
		return
	}

	srv.issueToken(w, r, acc)
}

func (srv *Server) issueToken(w http.ResponseWriter, r *http.Request, acc model.Account) {
	token, err := srv.deps.TokenManager.GenerateToken(acc.ID)
	if err != nil {
		srv.writeError(w, r, fmt.Errorf("generate token: %w", err))
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, http.StatusOK, model.TokenResponse{Token: token})
}

func (srv *Server) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	balance, err := srv.wallet.GetBalance(r.Context(), acc.ID)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.BalanceResponse{Balance: balance})
}

func (srv *Server) GetEntriesHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.listEntries(w, r, acc.ID)
}

func (srv *Server) listEntries(w http.ResponseWriter, r *http.Request, accountID int64) {
	filter, err := utils.EntryFilterFromQuery(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	entries, err := srv.wallet.ListEntries(r.Context(), accountID, filter)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (srv *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	var req userProfile
	if err := srv.decode(r, &req, true); err != nil {
		srv.writeError(w, r, err)
		return
	}

	update := model.ProfileUpdate{Name: req.Name, Email: req.Email}
	if err := srv.validate(update); err != nil {
		srv.writeError(w, r, err)
		return
	}

	updated, err := srv.accounts.UpdateProfile(r.Context(), acc.ID, update)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (srv *Server) AdminGetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	acc, err := srv.accounts.GetAccountByID(r.Context(), id)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (srv *Server) AdminUpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	var update model.ProfileUpdate
	if err := srv.decodeValid(r, &update, true); err != nil {
		srv.writeError(w, r, err)
		return
	}

	updated, err := srv.accounts.UpdateProfile(r.Context(), id, update)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	admin, _ := currentAccount(r)
	srv.deps.Logger.Infow("account updated by admin", "account_id", id, "admin_id", admin.ID, "role", updated.Role, "status", updated.Status)
	writeJSON(w, http.StatusOK, updated)
}

func (srv *Server) AdminGetEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.listEntries(w, r, id)
}

func (srv *Server) DepositHandler(w http.ResponseWriter, r *http.Request) {
	srv.moveFunds(w, r, srv.wallet.Deposit)
}

func (srv *Server) AdjustHandler(w http.ResponseWriter, r *http.Request) {
	srv.moveFunds(w, r, srv.wallet.Adjust)
}

func (srv *Server) moveFunds(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, actor model.Actor, accountID int64, amount decimal.Decimal, description string) (model.LedgerEntry, error)) {
	admin, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	var req model.AmountRequest
	if err := srv.decodeValid(r, &req, true); err != nil {
		srv.writeError(w, r, err)
		return
	}

	entry, err := move(r.Context(), admin.Actor(), id, req.Amount, req.Description)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}
