package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"turnero/internal/models"
	"turnero/internal/print"
	"turnero/internal/store"
	"turnero/internal/ticket"
)

type fakeStore struct {
	crearFn      func(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error)
	getTurnoFn   func(ctx context.Context, turnoID string) (models.Turno, error)
	llamarFn     func(ctx context.Context, input store.LlamarInput) (models.Turno, error)
	siguienteFn  func(ctx context.Context, input store.SiguienteInput) (models.Turno, error)
	rellamarFn   func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	atenderFn    func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	finalizarFn  func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	ausentarFn   func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	activoFn     func(ctx context.Context, operadorID string) (models.Turno, bool, error)
	activosFn    func(ctx context.Context, sectorIDs []string) ([]models.Turno, error)
	purgarFn     func(ctx context.Context, estados []string) (int, error)
	getSectorFn  func(ctx context.Context, sectorID string) (models.Sector, error)
	sectoresFn   func(ctx context.Context) ([]models.Sector, error)
	resetearFn   func(ctx context.Context, sectorID string) error
	ticketCfgFn  func(ctx context.Context) ([]byte, bool, error)
}

func (f fakeStore) CrearTurno(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
	if f.crearFn == nil {
		return models.Turno{}, nil
	}
	return f.crearFn(ctx, input)
}

func (f fakeStore) GetTurno(ctx context.Context, turnoID string) (models.Turno, error) {
	if f.getTurnoFn == nil {
		return models.Turno{}, nil
	}
	return f.getTurnoFn(ctx, turnoID)
}

func (f fakeStore) LlamarTurno(ctx context.Context, input store.LlamarInput) (models.Turno, error) {
	if f.llamarFn == nil {
		return models.Turno{}, nil
	}
	return f.llamarFn(ctx, input)
}

func (f fakeStore) LlamarSiguiente(ctx context.Context, input store.SiguienteInput) (models.Turno, error) {
	if f.siguienteFn == nil {
		return models.Turno{}, nil
	}
	return f.siguienteFn(ctx, input)
}

func (f fakeStore) RellamarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	if f.rellamarFn == nil {
		return models.Turno{}, nil
	}
	return f.rellamarFn(ctx, turnoID, fecha)
}

func (f fakeStore) AtenderTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	if f.atenderFn == nil {
		return models.Turno{}, nil
	}
	return f.atenderFn(ctx, turnoID, fecha)
}

func (f fakeStore) FinalizarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	if f.finalizarFn == nil {
		return models.Turno{}, nil
	}
	return f.finalizarFn(ctx, turnoID, fecha)
}

func (f fakeStore) AusentarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	if f.ausentarFn == nil {
		return models.Turno{}, nil
	}
	return f.ausentarFn(ctx, turnoID, fecha)
}

func (f fakeStore) TurnoActivo(ctx context.Context, operadorID string) (models.Turno, bool, error) {
	if f.activoFn == nil {
		return models.Turno{}, false, nil
	}
	return f.activoFn(ctx, operadorID)
}

func (f fakeStore) ListarActivos(ctx context.Context, sectorIDs []string) ([]models.Turno, error) {
	if f.activosFn == nil {
		return nil, nil
	}
	return f.activosFn(ctx, sectorIDs)
}

func (f fakeStore) PurgarTurnos(ctx context.Context, estados []string) (int, error) {
	if f.purgarFn == nil {
		return 0, nil
	}
	return f.purgarFn(ctx, estados)
}

func (f fakeStore) GetSector(ctx context.Context, sectorID string) (models.Sector, error) {
	if f.getSectorFn == nil {
		return models.Sector{}, nil
	}
	return f.getSectorFn(ctx, sectorID)
}

func (f fakeStore) ListarSectores(ctx context.Context) ([]models.Sector, error) {
	if f.sectoresFn == nil {
		return nil, nil
	}
	return f.sectoresFn(ctx)
}

func (f fakeStore) ResetearContador(ctx context.Context, sectorID string) error {
	if f.resetearFn == nil {
		return nil
	}
	return f.resetearFn(ctx, sectorID)
}

func (f fakeStore) GetTicketConfig(ctx context.Context) ([]byte, bool, error) {
	if f.ticketCfgFn == nil {
		return nil, false, nil
	}
	return f.ticketCfgFn(ctx)
}

type fakeImpresora struct {
	resultado print.Resultado
	err       error
	impresos  []string
}

func (f *fakeImpresora) Imprimir(bloques []ticket.Bloque, numero string) (print.Resultado, error) {
	f.impresos = append(f.impresos, numero)
	return f.resultado, f.err
}

type fakeNotificador struct {
	eventos []string
}

func (f *fakeNotificador) Publish(tipo, sectorID string, payload interface{}) {
	f.eventos = append(f.eventos, tipo)
}

const (
	sectorUUID   = "22222222-2222-2222-2222-222222222222"
	turnoUUID    = "11111111-1111-1111-1111-111111111111"
	operadorUUID = "33333333-3333-3333-3333-333333333333"
	boxUUID      = "44444444-4444-4444-4444-444444444444"
)

func newTestHandler(st store.TurnoStore, notificador Notificador, impresora Impresora) *Handler {
	return NewHandler(st, Options{
		Notificador: notificador,
		Impresora:   impresora,
		Logger:      zerolog.Nop(),
	})
}

func postJSON(t *testing.T, h *Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func TestCrearTurnoSuccess(t *testing.T) {
	st := fakeStore{
		crearFn: func(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
			return models.Turno{
				TurnoID:  turnoUUID,
				Numero:   "F042",
				DNI:      input.DNI,
				SectorID: input.SectorID,
				Estado:   models.EstadoEspera,
			}, nil
		},
		getSectorFn: func(ctx context.Context, sectorID string) (models.Sector, error) {
			return models.Sector{SectorID: sectorID, Nombre: "Farmacia", Codigo: "F"}, nil
		},
	}
	impresora := &fakeImpresora{resultado: print.Resultado{Tier: print.TierDispositivo}}
	notificador := &fakeNotificador{}
	h := newTestHandler(st, notificador, impresora)

	resp := postJSON(t, h, "/api/turnos", map[string]string{
		"dni":      "30123456",
		"sectorId": sectorUUID,
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var out struct {
		Turno     models.Turno `json:"turno"`
		Impresion string       `json:"impresion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Turno.Numero != "F042" || out.Turno.Estado != models.EstadoEspera {
		t.Fatalf("unexpected turno: %+v", out.Turno)
	}
	if out.Impresion != "ok" {
		t.Fatalf("impresion = %q, want ok", out.Impresion)
	}
	if len(impresora.impresos) != 1 || impresora.impresos[0] != "F042" {
		t.Fatalf("impresos = %v", impresora.impresos)
	}
	if len(notificador.eventos) != 1 || notificador.eventos[0] != "turno_nuevo" {
		t.Fatalf("eventos = %v", notificador.eventos)
	}
}

func TestCrearTurnoImpresionDegradada(t *testing.T) {
	st := fakeStore{
		crearFn: func(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
			return models.Turno{TurnoID: turnoUUID, Numero: "F042", SectorID: input.SectorID}, nil
		},
	}
	impresora := &fakeImpresora{resultado: print.Resultado{Tier: print.TierArchivo, Degradado: true}}
	h := newTestHandler(st, &fakeNotificador{}, impresora)

	resp := postJSON(t, h, "/api/turnos", map[string]string{
		"dni":      "30123456",
		"sectorId": sectorUUID,
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out["impresion"] != "degradado" {
		t.Fatalf("impresion = %v, want degradado", out["impresion"])
	}
}

func TestCrearTurnoImpresionFallidaNoRompeAlta(t *testing.T) {
	st := fakeStore{
		crearFn: func(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
			return models.Turno{TurnoID: turnoUUID, Numero: "F042", SectorID: input.SectorID}, nil
		},
	}
	impresora := &fakeImpresora{err: print.ErrImpresionFallida}
	h := newTestHandler(st, &fakeNotificador{}, impresora)

	resp := postJSON(t, h, "/api/turnos", map[string]string{
		"dni":      "30123456",
		"sectorId": sectorUUID,
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out["impresion"] != "fallida" {
		t.Fatalf("impresion = %v, want fallida", out["impresion"])
	}
}

func TestCrearTurnoInvalidDNI(t *testing.T) {
	h := newTestHandler(fakeStore{}, nil, nil)

	resp := postJSON(t, h, "/api/turnos", map[string]string{
		"dni":      "12ab56",
		"sectorId": sectorUUID,
	})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCrearTurnoSectorNoDisponible(t *testing.T) {
	st := fakeStore{
		crearFn: func(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
			return models.Turno{}, store.ErrSectorNoDisponible
		},
	}
	h := newTestHandler(st, nil, nil)

	resp := postJSON(t, h, "/api/turnos", map[string]string{
		"dni":      "30123456",
		"sectorId": sectorUUID,
	})

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestSiguienteColaVacia(t *testing.T) {
	st := fakeStore{
		siguienteFn: func(ctx context.Context, input store.SiguienteInput) (models.Turno, error) {
			return models.Turno{}, store.ErrColaVacia
		},
	}
	h := newTestHandler(st, &fakeNotificador{}, nil)

	resp := postJSON(t, h, "/api/turnos/siguiente", map[string]string{
		"sectorId":   sectorUUID,
		"operadorId": operadorUUID,
	})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var out errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Error.Code != "cola_vacia" {
		t.Fatalf("code = %q, want cola_vacia", out.Error.Code)
	}
}

func TestLlamarOperadorOcupado(t *testing.T) {
	activo := models.Turno{TurnoID: turnoUUID, Numero: "F041", Estado: models.EstadoLlamado}
	st := fakeStore{
		llamarFn: func(ctx context.Context, input store.LlamarInput) (models.Turno, error) {
			return models.Turno{}, &store.OperadorOcupadoError{Turno: activo}
		},
	}
	h := newTestHandler(st, &fakeNotificador{}, nil)

	resp := postJSON(t, h, "/api/turnos/llamar", map[string]string{
		"turnoId":    turnoUUID,
		"operadorId": operadorUUID,
	})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var out struct {
		Error       responseError `json:"error"`
		TurnoActivo models.Turno  `json:"turnoActivo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Error.Code != "operador_ocupado" {
		t.Fatalf("code = %q, want operador_ocupado", out.Error.Code)
	}
	if out.TurnoActivo.Numero != "F041" {
		t.Fatalf("turnoActivo = %+v", out.TurnoActivo)
	}
}

func TestLlamarSuccessPublica(t *testing.T) {
	st := fakeStore{
		llamarFn: func(ctx context.Context, input store.LlamarInput) (models.Turno, error) {
			return models.Turno{TurnoID: input.TurnoID, Numero: "F042", SectorID: sectorUUID, Estado: models.EstadoLlamado}, nil
		},
	}
	notificador := &fakeNotificador{}
	h := newTestHandler(st, notificador, nil)

	resp := postJSON(t, h, "/api/turnos/llamar", map[string]string{
		"turnoId":    turnoUUID,
		"operadorId": operadorUUID,
		"boxId":      boxUUID,
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(notificador.eventos) != 1 || notificador.eventos[0] != "turno_llamado" {
		t.Fatalf("eventos = %v", notificador.eventos)
	}
}

func TestRellamarEstadoInvalido(t *testing.T) {
	st := fakeStore{
		rellamarFn: func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
			return models.Turno{}, store.ErrTurnoNoActivo
		},
	}
	h := newTestHandler(st, &fakeNotificador{}, nil)

	resp := postJSON(t, h, "/api/turnos/rellamar", map[string]string{"turnoId": turnoUUID})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestFinalizarSuccess(t *testing.T) {
	st := fakeStore{
		finalizarFn: func(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
			return models.Turno{TurnoID: turnoID, Estado: models.EstadoFinalizado, SectorID: sectorUUID}, nil
		},
	}
	notificador := &fakeNotificador{}
	h := newTestHandler(st, notificador, nil)

	resp := postJSON(t, h, "/api/turnos/finalizar", map[string]string{"turnoId": turnoUUID})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(notificador.eventos) != 1 || notificador.eventos[0] != "turno_finalizado" {
		t.Fatalf("eventos = %v", notificador.eventos)
	}
}

func TestActivoSinTurno(t *testing.T) {
	st := fakeStore{
		activoFn: func(ctx context.Context, operadorID string) (models.Turno, bool, error) {
			return models.Turno{}, false, nil
		},
	}
	h := newTestHandler(st, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/turnos/activo?operadorId="+operadorUUID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestActivosFiltraSectores(t *testing.T) {
	var recibidos []string
	st := fakeStore{
		activosFn: func(ctx context.Context, sectorIDs []string) ([]models.Turno, error) {
			recibidos = sectorIDs
			return []models.Turno{{TurnoID: turnoUUID}}, nil
		},
	}
	h := newTestHandler(st, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/turnos/activos?sectorIds="+sectorUUID+","+boxUUID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(recibidos) != 2 {
		t.Fatalf("sectorIDs = %v", recibidos)
	}
}

func TestPurgarDevuelveCantidad(t *testing.T) {
	st := fakeStore{
		purgarFn: func(ctx context.Context, estados []string) (int, error) {
			return 17, nil
		},
	}
	h := newTestHandler(st, &fakeNotificador{}, nil)

	resp := postJSON(t, h, "/api/admin/turnos/purgar", map[string]interface{}{
		"estados": []string{models.EstadoFinalizado, models.EstadoAusente},
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var out purgarResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.CantidadEliminada != 17 {
		t.Fatalf("cantidadEliminada = %d, want 17", out.CantidadEliminada)
	}
}

func TestPurgarEstadoDesconocido(t *testing.T) {
	st := fakeStore{
		purgarFn: func(ctx context.Context, estados []string) (int, error) {
			return 0, store.ErrEstadoInvalido
		},
	}
	h := newTestHandler(st, &fakeNotificador{}, nil)

	resp := postJSON(t, h, "/api/admin/turnos/purgar", map[string]interface{}{
		"estados": []string{"desconocido"},
	})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestResetearContador(t *testing.T) {
	reseteado := false
	st := fakeStore{
		resetearFn: func(ctx context.Context, sectorID string) error {
			reseteado = true
			return nil
		},
		getSectorFn: func(ctx context.Context, sectorID string) (models.Sector, error) {
			return models.Sector{SectorID: sectorID, Nombre: "Farmacia", NumeroTurno: 0}, nil
		},
	}
	h := newTestHandler(st, nil, nil)

	resp := postJSON(t, h, "/api/admin/sectores/"+sectorUUID+"/resetear", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !reseteado {
		t.Fatal("ResetearContador never called")
	}
}

func TestReimprimir(t *testing.T) {
	st := fakeStore{
		getTurnoFn: func(ctx context.Context, turnoID string) (models.Turno, error) {
			return models.Turno{TurnoID: turnoID, Numero: "F042", SectorID: sectorUUID}, nil
		},
	}
	impresora := &fakeImpresora{resultado: print.Resultado{Tier: print.TierDispositivo}}
	h := newTestHandler(st, nil, impresora)

	resp := postJSON(t, h, "/api/turnos/"+turnoUUID+"/reimprimir", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(impresora.impresos) != 1 {
		t.Fatalf("impresos = %v", impresora.impresos)
	}
}

func TestTicketConfigDefaults(t *testing.T) {
	h := newTestHandler(fakeStore{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/config", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var cfg ticket.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(cfg.Orden) == 0 {
		t.Fatal("expected default orden")
	}
}
