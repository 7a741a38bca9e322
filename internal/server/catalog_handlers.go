package server

import (
	"fmt"
	"net/http"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/utils"
)

func (srv *Server) GetServicesHandler(w http.ResponseWriter, r *http.Request) {
	srv.listServices(w, r, true)
}

func (srv *Server) AdminGetServicesHandler(w http.ResponseWriter, r *http.Request) {
	srv.listServices(w, r, false)
}

func (srv *Server) listServices(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	services, err := srv.catalog.ListServices(r.Context(), activeOnly)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	if services == nil {
		services = []model.Service{}
	}

	writeJSON(w, http.StatusOK, services)
}

func (srv *Server) decodeService(r *http.Request) (model.Service, error) {
	var req model.ServiceRequest
	if err := srv.decodeValid(r, &req, true); err != nil {
		return model.Service{}, err
	}
	if !req.Rate.IsPositive() {
		return model.Service{}, fmt.Errorf("%w: rate must be positive", errValidation)
	}

	return model.Service{
		Name:              req.Name,
		Rate:              req.Rate,
		MinOrder:          req.MinOrder,
		MaxOrder:          req.MaxOrder,
		Status:            req.Status,
		ProviderID:        req.ProviderID,
		ProviderServiceID: req.ProviderServiceID,
	}, nil
}

func (srv *Server) CreateServiceHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := srv.decodeService(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	created, err := srv.catalog.CreateService(r.Context(), svc)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (srv *Server) UpdateServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := utils.PathID(r, "id")
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	svc, err := srv.decodeService(r)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	svc.ID = id

	updated, err := srv.catalog.UpdateService(r.Context(), svc)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (srv *Server) GetProvidersHandler(w http.ResponseWriter, r *http.Request) {
	providers, err := srv.catalog.ListProviders(r.Context())
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	if providers == nil {
		providers = []model.Provider{}
	}

	writeJSON(w, http.StatusOK, providers)
}

func (srv *Server) CreateProviderHandler(w http.ResponseWriter, r *http.Request) {
	var req model.ProviderRequest
	if err := srv.decodeValid(r, &req, true); err != nil {
		srv.writeError(w, r, err)
		return
	}

	created, err := srv.catalog.CreateProvider(r.Context(), model.Provider{
		Name:   req.Name,
		APIURL: req.APIURL,
		APIKey: req.APIKey,
		Status: req.Status,
	})
	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}
