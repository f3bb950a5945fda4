package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/controller"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/internal/websocket"
	"github.com/skycast-app/skycast/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	controller *controller.Controller
	config     *config.Config
	logger     *logger.Logger
	wsServer   *websocket.Server
	validate   *validator.Validate
}

// NewHandler creates a new API handler
func NewHandler(ctrl *controller.Controller, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		controller: ctrl,
		config:     cfg,
		logger:     log.Named("api-handler"),
		wsServer:   wsServer,
		validate:   validator.New(),
	}
}

type placeRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name" validate:"required"`
	Admin1    string  `json:"admin1"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Timezone  string  `json:"timezone" validate:"required"`
}

func (req placeRequest) toPlace() place.Place {
	return place.Place{
		ID:        req.ID,
		Name:      req.Name,
		Admin1:    req.Admin1,
		Country:   req.Country,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timezone:  req.Timezone,
	}
}

type locateRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

type unitsRequest struct {
	Unit string `json:"unit" validate:"required,oneof=metric imperial"`
}

type themeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

// decodeAndValidate decodes a JSON request body and runs struct validation
func (h *Handler) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// GetState returns the full application state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.controller.State())
}

// Search registers a typed query. The query is debounced inside the
// controller; suggestions arrive through state pushes, so the response only
// acknowledges the query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.controller.Search(query)
	WriteJSON(w, http.StatusAccepted, map[string]string{"query": query})
}

// SelectPlace makes the posted place the selected one
func (h *Handler) SelectPlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.controller.SelectPlace(req.toPlace()); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.controller.State())
}

// Locate selects the place at the posted coordinates via reverse geocoding
func (h *Handler) Locate(w http.ResponseWriter, r *http.Request) {
	var req locateRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.controller.Locate(req.Latitude, req.Longitude); err != nil {
		h.logger.Error("Locate failed", logger.Error(err))
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.controller.State())
}

// SetUnits switches the unit system
func (h *Handler) SetUnits(w http.ResponseWriter, r *http.Request) {
	var req unitsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.controller.SetUnit(req.Unit); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.controller.State())
}

// SetTheme switches the display theme
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.controller.SetTheme(req.Theme); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.controller.State())
}

// RefreshForecast reloads the forecast for the selected place
func (h *Handler) RefreshForecast(w http.ResponseWriter, r *http.Request) {
	h.controller.Refresh()
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// GetFavorites lists the favorite places, most recently added first
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favs := h.controller.Favorites()
	if favs == nil {
		favs = []place.Place{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"favorites": favs,
		"count":     len(favs),
	})
}

// ToggleFavorite toggles the posted place in the favorites list
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	added, err := h.controller.ToggleFavorite(req.toPlace())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"favorite": added,
		"count":    len(h.controller.Favorites()),
	})
}

// GetHealth reports liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetConfig returns the configuration subset the dashboard needs to mirror
// server-side behavior (debounce timing, query limits, series sizing)
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"debounce_ms":        h.config.Search.DebounceMs,
		"min_query_length":   h.config.Search.MinQueryLength,
		"max_results":        h.config.Search.MaxResults,
		"hourly_window_size": h.config.Forecast.HourlyWindowSize,
		"favorites_max":      h.config.Favorites.MaxEntries,
	})
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
