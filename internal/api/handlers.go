package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.Health())
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.query.Stocks(r.Context(), mux.Vars(r)["symbol"], q.Get("days"), q.Get("real"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCrypto(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.query.Crypto(r.Context(), mux.Vars(r)["symbol"], q.Get("hours"), q.Get("real"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.query.Forex(r.Context(), mux.Vars(r)["pair"], q.Get("days"), q.Get("real"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRealtimePrice(w http.ResponseWriter, r *http.Request) {
	resp, err := s.query.RealtimePrice(r.Context(), mux.Vars(r)["symbol"], r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEconomicIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.EconomicIndicators())
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.Portfolio())
}

func (s *Server) handleMarketOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.MarketOverview())
}

func (s *Server) handleAvailableAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.query.AvailableAssets()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}
