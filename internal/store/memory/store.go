// Package memory implements TurnoStore with in-process state. It backs
// development mode (no database configured) and the concurrency tests; the
// single mutex gives the same atomicity the Postgres store gets from
// row locks and advisory locks.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"turnero/internal/models"
	"turnero/internal/store"

	"github.com/google/uuid"
)

const numeroPad = 3

type Store struct {
	mu           sync.Mutex
	sectores     map[string]*models.Sector
	turnos       map[string]*models.Turno
	boxes        map[string]*models.Box
	ticketConfig []byte
}

func NewStore() *Store {
	return &Store{
		sectores: make(map[string]*models.Sector),
		turnos:   make(map[string]*models.Turno),
		boxes:    make(map[string]*models.Box),
	}
}

// Seed loads the default install data so a development server is usable
// out of the box. Returns the seeded sectors for logging.
func (s *Store) Seed() []models.Sector {
	defaults := []models.Sector{
		{SectorID: uuid.NewString(), Nombre: "Farmacia", Codigo: "F", Color: "#10b981", Activo: true},
		{SectorID: uuid.NewString(), Nombre: "Informes", Codigo: "I", Color: "#3b82f6", Activo: true},
		{SectorID: uuid.NewString(), Nombre: "Laboratorio", Codigo: "L", Color: "#8b5cf6", Activo: true},
		{SectorID: uuid.NewString(), Nombre: "Vacunatorio", Codigo: "V", Color: "#f59e0b", Activo: true},
	}
	for i := range defaults {
		s.AgregarSector(defaults[i])
	}
	for _, nombre := range []string{"Box 1", "Box 2", "Box 3"} {
		s.AgregarBox(models.Box{BoxID: uuid.NewString(), Nombre: nombre, Activo: true})
	}
	return defaults
}

func (s *Store) AgregarSector(sector models.Sector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copia := sector
	s.sectores[sector.SectorID] = &copia
}

func (s *Store) AgregarBox(box models.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copia := box
	s.boxes[box.BoxID] = &copia
}

func (s *Store) SetTicketConfig(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketConfig = raw
}

func (s *Store) CrearTurno(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sector, ok := s.sectores[input.SectorID]
	if !ok || !sector.Activo {
		return models.Turno{}, store.ErrSectorNoDisponible
	}
	sector.NumeroTurno++

	fechaCreacion := input.FechaCreacion
	if fechaCreacion.IsZero() {
		fechaCreacion = time.Now().UTC()
	}
	turno := models.Turno{
		TurnoID:       uuid.NewString(),
		Numero:        fmt.Sprintf("%s%0*d", sector.Codigo, numeroPad, sector.NumeroTurno),
		DNI:           input.DNI,
		SectorID:      input.SectorID,
		Estado:        models.EstadoEspera,
		FechaCreacion: fechaCreacion,
	}
	s.turnos[turno.TurnoID] = &turno
	return turno, nil
}

func (s *Store) GetTurno(ctx context.Context, turnoID string) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turno, ok := s.turnos[turnoID]
	if !ok {
		return models.Turno{}, store.ErrTurnoNoEncontrado
	}
	return *turno, nil
}

func (s *Store) LlamarTurno(ctx context.Context, input store.LlamarInput) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activo := s.turnoActivoLocked(input.OperadorID); activo != nil {
		return models.Turno{}, &store.OperadorOcupadoError{Turno: *activo}
	}
	if input.BoxID != "" {
		box, ok := s.boxes[input.BoxID]
		if !ok || !box.Activo {
			return models.Turno{}, store.ErrBoxNoEncontrado
		}
	}
	turno, ok := s.turnos[input.TurnoID]
	if !ok {
		return models.Turno{}, store.ErrTurnoNoEncontrado
	}
	if turno.Estado != models.EstadoEspera {
		return models.Turno{}, store.ErrEstadoInvalido
	}

	fechaLlamado := input.FechaLlamado
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}
	turno.Estado = models.EstadoLlamado
	operadorID := input.OperadorID
	turno.OperadorID = &operadorID
	turno.BoxID = strPtrOrNil(input.BoxID)
	turno.FechaLlamado = &fechaLlamado
	return *turno, nil
}

func (s *Store) LlamarSiguiente(ctx context.Context, input store.SiguienteInput) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activo := s.turnoActivoLocked(input.OperadorID); activo != nil {
		return models.Turno{}, &store.OperadorOcupadoError{Turno: *activo}
	}
	sector, ok := s.sectores[input.SectorID]
	if !ok || !sector.Activo {
		return models.Turno{}, store.ErrSectorNoDisponible
	}
	if input.BoxID != "" {
		box, ok := s.boxes[input.BoxID]
		if !ok || !box.Activo {
			return models.Turno{}, store.ErrBoxNoEncontrado
		}
	}

	var siguiente *models.Turno
	for _, turno := range s.turnos {
		if turno.SectorID != input.SectorID || turno.Estado != models.EstadoEspera {
			continue
		}
		if siguiente == nil || antes(turno, siguiente) {
			siguiente = turno
		}
	}
	if siguiente == nil {
		return models.Turno{}, store.ErrColaVacia
	}

	fechaLlamado := input.FechaLlamado
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}
	siguiente.Estado = models.EstadoLlamado
	operadorID := input.OperadorID
	siguiente.OperadorID = &operadorID
	siguiente.BoxID = strPtrOrNil(input.BoxID)
	siguiente.FechaLlamado = &fechaLlamado
	return *siguiente, nil
}

func (s *Store) RellamarTurno(ctx context.Context, turnoID string, fechaLlamado time.Time) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turno, ok := s.turnos[turnoID]
	if !ok {
		return models.Turno{}, store.ErrTurnoNoEncontrado
	}
	if !esActivo(turno.Estado) {
		return models.Turno{}, store.ErrTurnoNoActivo
	}
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}
	turno.FechaLlamado = &fechaLlamado
	return *turno, nil
}

func (s *Store) AtenderTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(turnoID, store.Allowed("atender"), models.EstadoAtendiendo, false, fecha)
}

func (s *Store) FinalizarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(turnoID, store.Allowed("finalizar"), models.EstadoFinalizado, true, fecha)
}

func (s *Store) AusentarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(turnoID, store.Allowed("ausente"), models.EstadoAusente, true, fecha)
}

func (s *Store) updateEstado(turnoID string, fromEstados []string, toEstado string, setFin bool, fecha time.Time) (models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turno, ok := s.turnos[turnoID]
	if !ok {
		return models.Turno{}, store.ErrTurnoNoEncontrado
	}
	if !contiene(fromEstados, turno.Estado) {
		return models.Turno{}, store.ErrEstadoInvalido
	}
	if fecha.IsZero() {
		fecha = time.Now().UTC()
	}
	turno.Estado = toEstado
	if setFin {
		turno.FechaFin = &fecha
	}
	return *turno, nil
}

func (s *Store) TurnoActivo(ctx context.Context, operadorID string) (models.Turno, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activo := s.turnoActivoLocked(operadorID); activo != nil {
		return *activo, true, nil
	}
	return models.Turno{}, false, nil
}

func (s *Store) ListarActivos(ctx context.Context, sectorIDs []string) ([]models.Turno, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtro := make(map[string]bool, len(sectorIDs))
	for _, id := range sectorIDs {
		filtro[id] = true
	}

	var turnos []models.Turno
	for _, turno := range s.turnos {
		if !esActivo(turno.Estado) {
			continue
		}
		if len(filtro) > 0 && !filtro[turno.SectorID] {
			continue
		}
		turnos = append(turnos, *turno)
	}
	sort.Slice(turnos, func(i, j int) bool {
		ti, tj := turnos[i].FechaLlamado, turnos[j].FechaLlamado
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.After(*tj)
	})
	return turnos, nil
}

func (s *Store) PurgarTurnos(ctx context.Context, estados []string) (int, error) {
	for _, estado := range estados {
		if !models.EstadoConocido(estado) {
			return 0, store.ErrEstadoInvalido
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, turno := range s.turnos {
		if contiene(estados, turno.Estado) {
			delete(s.turnos, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) GetSector(ctx context.Context, sectorID string) (models.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sector, ok := s.sectores[sectorID]
	if !ok {
		return models.Sector{}, store.ErrSectorNoDisponible
	}
	return *sector, nil
}

func (s *Store) ListarSectores(ctx context.Context) ([]models.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sectores []models.Sector
	for _, sector := range s.sectores {
		if !sector.Activo {
			continue
		}
		sectores = append(sectores, *sector)
	}
	sort.Slice(sectores, func(i, j int) bool {
		return sectores[i].Nombre < sectores[j].Nombre
	})
	return sectores, nil
}

func (s *Store) ResetearContador(ctx context.Context, sectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sector, ok := s.sectores[sectorID]
	if !ok {
		return store.ErrSectorNoDisponible
	}
	sector.NumeroTurno = 0
	return nil
}

func (s *Store) GetTicketConfig(ctx context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ticketConfig) == 0 {
		return nil, false, nil
	}
	return s.ticketConfig, true, nil
}

func (s *Store) turnoActivoLocked(operadorID string) *models.Turno {
	var activo *models.Turno
	for _, turno := range s.turnos {
		if turno.OperadorID == nil || *turno.OperadorID != operadorID || !esActivo(turno.Estado) {
			continue
		}
		if activo == nil || despuesLlamado(turno, activo) {
			activo = turno
		}
	}
	return activo
}

func antes(a, b *models.Turno) bool {
	if !a.FechaCreacion.Equal(b.FechaCreacion) {
		return a.FechaCreacion.Before(b.FechaCreacion)
	}
	return a.Numero < b.Numero
}

func despuesLlamado(a, b *models.Turno) bool {
	if a.FechaLlamado == nil || b.FechaLlamado == nil {
		return b.FechaLlamado == nil
	}
	return a.FechaLlamado.After(*b.FechaLlamado)
}

func esActivo(estado string) bool {
	return contiene(models.EstadosActivos, estado)
}

func contiene(estados []string, estado string) bool {
	for _, e := range estados {
		if e == estado {
			return true
		}
	}
	return false
}

func strPtrOrNil(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
