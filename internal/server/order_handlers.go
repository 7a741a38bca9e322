package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/utils"
)

func (srv *Server) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	var req model.PlaceOrderRequest
	if err := srv.decodeValid(r, &req, false); err != nil {
		srv.writeError(w, r, err)
		return
	}

	order, err := srv.orders.PlaceOrder(r.Context(), model.PlaceOrder{
		AccountID: acc.ID,
		ServiceID: req.ServiceID,
		Link:      req.Link,
		Quantity:  req.Quantity,
	})
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (srv *Server) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	page, err := utils.PageFromQuery(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	orders, err := srv.orders.ListOrders(r.Context(), acc.ID, page)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler hides other accounts' orders behind 404 unless the caller
// is an admin.
func (srv *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := currentAccount(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	order, err := srv.orders.GetOrder(r.Context(), id)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	if order.AccountID != acc.ID && !acc.IsAdmin() {
		srv.writeError(w, r, errs.ErrOrderNotFound)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (srv *Server) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	srv.creditBack(w, r, srv.orders.RefundOrder)
}

func (srv *Server) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	srv.creditBack(w, r, srv.orders.CancelOrder)
}

func (srv *Server) creditBack(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, actor model.Actor, orderID int64) (model.LedgerEntry, error)) {
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

	entry, err := action(r.Context(), admin.Actor(), id)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (srv *Server) AdvanceOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	var req model.ProgressRequest
	if err := srv.decodeValid(r, &req, true); err != nil {
		srv.writeError(w, r, err)
		return
	}
	if !req.Status.Valid() {
		srv.writeError(w, r, fmt.Errorf("%w: unknown status %q", errValidation, req.Status))
		return
	}

	order, err := srv.orders.AdvanceOrder(r.Context(), id, model.OrderProgress{
		Status:          req.Status,
		StartCount:      req.StartCount,
		Remains:         req.Remains,
		ProviderOrderID: req.ProviderOrderID,
	})
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}
