package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"turnero/internal/models"
	"turnero/internal/print"
	"turnero/internal/store"
	"turnero/internal/ticket"
)

// Notificador publishes turno events toward the waiting room displays.
type Notificador interface {
	Publish(tipo, sectorID string, payload interface{})
}

// Impresora writes a rendered ticket to the configured outputs.
type Impresora interface {
	Imprimir(bloques []ticket.Bloque, numero string) (print.Resultado, error)
}

type Handler struct {
	store       store.TurnoStore
	notificador Notificador
	impresora   Impresora
	logger      zerolog.Logger
}

type Options struct {
	Notificador Notificador
	Impresora   Impresora
	Logger      zerolog.Logger
}

func NewHandler(store store.TurnoStore, options Options) *Handler {
	return &Handler{
		store:       store,
		notificador: options.Notificador,
		impresora:   options.Impresora,
		logger:      options.Logger,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/turnos", h.handleCrearTurno)
	mux.HandleFunc("/api/turnos/siguiente", h.handleSiguiente)
	mux.HandleFunc("/api/turnos/llamar", h.handleLlamar)
	mux.HandleFunc("/api/turnos/rellamar", h.handleRellamar)
	mux.HandleFunc("/api/turnos/atender", h.handleAtender)
	mux.HandleFunc("/api/turnos/finalizar", h.handleFinalizar)
	mux.HandleFunc("/api/turnos/ausente", h.handleAusente)
	mux.HandleFunc("/api/turnos/activo", h.handleActivo)
	mux.HandleFunc("/api/turnos/activos", h.handleActivos)
	mux.HandleFunc("/api/turnos/", h.handleTurnoSubrutas)
	mux.HandleFunc("/api/admin/turnos/purgar", h.handlePurgar)
	mux.HandleFunc("/api/admin/sectores/", h.handleSectorAdmin)
	mux.HandleFunc("/api/sectores", h.handleSectores)
	mux.HandleFunc("/api/tickets/config", h.handleTicketConfig)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type crearTurnoRequest struct {
	DNI      string `json:"dni"`
	SectorID string `json:"sectorId"`
}

type crearTurnoResponse struct {
	Turno     models.Turno `json:"turno"`
	Impresion string       `json:"impresion"`
}

const (
	impresionOK        = "ok"
	impresionDegradada = "degradado"
	impresionFallida   = "fallida"
)

func (h *Handler) handleCrearTurno(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req crearTurnoRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.DNI = strings.TrimSpace(req.DNI)
	req.SectorID = strings.TrimSpace(req.SectorID)

	if req.DNI == "" || req.SectorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "dni and sectorId are required")
		return
	}
	if !isValidUUID(req.SectorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "sectorId must be a UUID")
		return
	}
	if !isValidDNI(req.DNI) {
		writeError(w, http.StatusBadRequest, "invalid_request", "dni must be 7-10 digits")
		return
	}

	turno, err := h.store.CrearTurno(r.Context(), store.CrearTurnoInput{
		DNI:           req.DNI,
		SectorID:      req.SectorID,
		FechaCreacion: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish("turno_nuevo", turno.SectorID, turno)
	impresion := h.imprimirTurno(r.Context(), turno.Numero, turno.DNI, turno.SectorID, turno.FechaCreacion)

	writeJSON(w, http.StatusCreated, crearTurnoResponse{Turno: turno, Impresion: impresion})
}

// imprimirTurno renders and prints a ticket. Print failures never fail the
// request; the caller reports the outcome in the response body instead.
func (h *Handler) imprimirTurno(ctx context.Context, numero, dni, sectorID string, fecha time.Time) string {
	if h.impresora == nil {
		return impresionFallida
	}

	cfg := ticket.DefaultConfig()
	raw, found, err := h.store.GetTicketConfig(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ticket config lookup failed, using defaults")
	} else if found {
		parsed, perr := ticket.ParseConfig(raw)
		if perr != nil {
			h.logger.Warn().Err(perr).Msg("stored ticket config invalid, using defaults")
		} else {
			cfg = parsed
		}
	}

	sector, err := h.store.GetSector(ctx, sectorID)
	if err != nil {
		h.logger.Warn().Err(err).Str("sector_id", sectorID).Msg("sector lookup failed for ticket")
	}

	bloques := ticket.Render(cfg, ticket.Datos{
		Numero: numero,
		Sector: sector.Nombre,
		Color:  sector.Color,
		DNI:    dni,
		Fecha:  fecha,
	})

	res, err := h.impresora.Imprimir(bloques, numero)
	if err != nil {
		h.logger.Error().Err(err).Str("numero", numero).Msg("impresion fallida")
		return impresionFallida
	}
	if res.Degradado {
		return impresionDegradada
	}
	return impresionOK
}

func (h *Handler) handleTurnoSubrutas(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/turnos/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "reimprimir" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	turnoID := parts[0]
	if !isValidUUID(turnoID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "turno id must be a UUID")
		return
	}

	turno, err := h.store.GetTurno(r.Context(), turnoID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	impresion := h.imprimirTurno(r.Context(), turno.Numero, turno.DNI, turno.SectorID, turno.FechaCreacion)
	writeJSON(w, http.StatusOK, crearTurnoResponse{Turno: turno, Impresion: impresion})
}

type siguienteRequest struct {
	SectorID   string `json:"sectorId"`
	OperadorID string `json:"operadorId"`
	BoxID      string `json:"boxId"`
}

func (h *Handler) handleSiguiente(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req siguienteRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.SectorID = strings.TrimSpace(req.SectorID)
	req.OperadorID = strings.TrimSpace(req.OperadorID)
	req.BoxID = strings.TrimSpace(req.BoxID)

	if req.SectorID == "" || req.OperadorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sectorId and operadorId are required")
		return
	}
	if !isValidUUID(req.SectorID) || !isValidUUID(req.OperadorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "sectorId and operadorId must be UUIDs")
		return
	}
	if req.BoxID != "" && !isValidUUID(req.BoxID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "boxId must be a UUID when provided")
		return
	}

	turno, err := h.store.LlamarSiguiente(r.Context(), store.SiguienteInput{
		SectorID:     req.SectorID,
		OperadorID:   req.OperadorID,
		BoxID:        req.BoxID,
		FechaLlamado: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrColaVacia) {
			writeError(w, http.StatusConflict, "cola_vacia", "no waiting turnos in sector")
			return
		}
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_llamado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

type llamarRequest struct {
	TurnoID    string `json:"turnoId"`
	OperadorID string `json:"operadorId"`
	BoxID      string `json:"boxId"`
}

func (h *Handler) handleLlamar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req llamarRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.TurnoID = strings.TrimSpace(req.TurnoID)
	req.OperadorID = strings.TrimSpace(req.OperadorID)
	req.BoxID = strings.TrimSpace(req.BoxID)

	if req.TurnoID == "" || req.OperadorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "turnoId and operadorId are required")
		return
	}
	if !isValidUUID(req.TurnoID) || !isValidUUID(req.OperadorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "turnoId and operadorId must be UUIDs")
		return
	}
	if req.BoxID != "" && !isValidUUID(req.BoxID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "boxId must be a UUID when provided")
		return
	}

	turno, err := h.store.LlamarTurno(r.Context(), store.LlamarInput{
		TurnoID:      req.TurnoID,
		OperadorID:   req.OperadorID,
		BoxID:        req.BoxID,
		FechaLlamado: time.Now().UTC(),
	})
	if err != nil {
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_llamado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

type turnoAccionRequest struct {
	TurnoID string `json:"turnoId"`
}

func (h *Handler) decodeAccion(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}

	var req turnoAccionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return "", false
	}

	req.TurnoID = strings.TrimSpace(req.TurnoID)
	if req.TurnoID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "turnoId is required")
		return "", false
	}
	if !isValidUUID(req.TurnoID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "turnoId must be a UUID")
		return "", false
	}
	return req.TurnoID, true
}

func (h *Handler) handleRellamar(w http.ResponseWriter, r *http.Request) {
	turnoID, ok := h.decodeAccion(w, r)
	if !ok {
		return
	}

	turno, err := h.store.RellamarTurno(r.Context(), turnoID, time.Now().UTC())
	if err != nil {
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_llamado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

func (h *Handler) handleAtender(w http.ResponseWriter, r *http.Request) {
	turnoID, ok := h.decodeAccion(w, r)
	if !ok {
		return
	}

	turno, err := h.store.AtenderTurno(r.Context(), turnoID, time.Now().UTC())
	if err != nil {
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_actualizado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

func (h *Handler) handleFinalizar(w http.ResponseWriter, r *http.Request) {
	turnoID, ok := h.decodeAccion(w, r)
	if !ok {
		return
	}

	turno, err := h.store.FinalizarTurno(r.Context(), turnoID, time.Now().UTC())
	if err != nil {
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_finalizado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

func (h *Handler) handleAusente(w http.ResponseWriter, r *http.Request) {
	turnoID, ok := h.decodeAccion(w, r)
	if !ok {
		return
	}

	turno, err := h.store.AusentarTurno(r.Context(), turnoID, time.Now().UTC())
	if err != nil {
		h.writeOperacionError(w, err)
		return
	}

	h.publish("turno_finalizado", turno.SectorID, turno)
	writeJSON(w, http.StatusOK, turno)
}

func (h *Handler) handleActivo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	operadorID := strings.TrimSpace(r.URL.Query().Get("operadorId"))
	if operadorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "operadorId is required")
		return
	}
	if !isValidUUID(operadorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "operadorId must be a UUID")
		return
	}

	turno, found, err := h.store.TurnoActivo(r.Context(), operadorID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, turno)
}

func (h *Handler) handleActivos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var sectorIDs []string
	if raw := strings.TrimSpace(r.URL.Query().Get("sectorIds")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if !isValidUUID(id) {
				writeError(w, http.StatusBadRequest, "invalid_request", "sectorIds must be UUIDs")
				return
			}
			sectorIDs = append(sectorIDs, id)
		}
	}

	turnos, err := h.store.ListarActivos(r.Context(), sectorIDs)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, turnos)
}

type purgarRequest struct {
	Estados []string `json:"estados"`
}

type purgarResponse struct {
	CantidadEliminada int `json:"cantidadEliminada"`
}

func (h *Handler) handlePurgar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req purgarRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(req.Estados) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "estados is required")
		return
	}

	cantidad, err := h.store.PurgarTurnos(r.Context(), req.Estados)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.publish("turnos_purgados", "", purgarResponse{CantidadEliminada: cantidad})
	writeJSON(w, http.StatusOK, purgarResponse{CantidadEliminada: cantidad})
}

func (h *Handler) handleSectorAdmin(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/sectores/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "resetear" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sectorID := parts[0]
	if !isValidUUID(sectorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "sector id must be a UUID")
		return
	}

	if err := h.store.ResetearContador(r.Context(), sectorID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	sector, err := h.store.GetSector(r.Context(), sectorID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, sector)
}

func (h *Handler) handleSectores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sectores, err := h.store.ListarSectores(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, sectores)
}

func (h *Handler) handleTicketConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, found, err := h.store.GetTicketConfig(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	cfg := ticket.DefaultConfig()
	if found {
		parsed, perr := ticket.ParseConfig(raw)
		if perr == nil {
			cfg = parsed
		}
	}

	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) publish(tipo, sectorID string, payload interface{}) {
	if h.notificador == nil {
		return
	}
	h.notificador.Publish(tipo, sectorID, payload)
}

// writeOperacionError handles transition errors, including the busy-operator
// conflict that carries the operator's current turno for the console UI.
func (h *Handler) writeOperacionError(w http.ResponseWriter, err error) {
	var ocupado *store.OperadorOcupadoError
	if errors.As(err, &ocupado) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": responseError{
				Code:    "operador_ocupado",
				Message: "operator already has an active turno",
			},
			"turnoActivo": ocupado.Turno,
		})
		return
	}
	status, code, msg := mapError(err)
	writeError(w, status, code, msg)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidDNI(value string) bool {
	if len(value) < 7 || len(value) > 10 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrSectorNoDisponible):
		return http.StatusNotFound, "sector_no_disponible", "sector not found or inactive"
	case errors.Is(err, store.ErrTurnoNoEncontrado):
		return http.StatusNotFound, "turno_no_encontrado", "turno not found"
	case errors.Is(err, store.ErrBoxNoEncontrado):
		return http.StatusNotFound, "box_no_encontrado", "box not found"
	case errors.Is(err, store.ErrEstadoInvalido):
		return http.StatusConflict, "estado_invalido", "turno state does not allow this action"
	case errors.Is(err, store.ErrTurnoNoActivo):
		return http.StatusConflict, "turno_no_activo", "turno is not being called or served"
	case errors.Is(err, store.ErrColaVacia):
		return http.StatusConflict, "cola_vacia", "no waiting turnos in sector"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
