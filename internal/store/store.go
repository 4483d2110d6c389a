package store

import (
	"context"
	"time"

	"turnero/internal/models"
)

type CrearTurnoInput struct {
	DNI           string
	SectorID      string
	FechaCreacion time.Time
}

type LlamarInput struct {
	TurnoID      string
	OperadorID   string
	BoxID        string
	FechaLlamado time.Time
}

type SiguienteInput struct {
	SectorID     string
	OperadorID   string
	BoxID        string
	FechaLlamado time.Time
}

// TurnoStore is the persistence contract for the turno lifecycle. Every
// mutation is atomic: either the full transition applies or nothing does.
type TurnoStore interface {
	CrearTurno(ctx context.Context, input CrearTurnoInput) (models.Turno, error)
	GetTurno(ctx context.Context, turnoID string) (models.Turno, error)
	LlamarTurno(ctx context.Context, input LlamarInput) (models.Turno, error)
	LlamarSiguiente(ctx context.Context, input SiguienteInput) (models.Turno, error)
	RellamarTurno(ctx context.Context, turnoID string, fechaLlamado time.Time) (models.Turno, error)
	AtenderTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	FinalizarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	AusentarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error)
	TurnoActivo(ctx context.Context, operadorID string) (models.Turno, bool, error)
	ListarActivos(ctx context.Context, sectorIDs []string) ([]models.Turno, error)
	PurgarTurnos(ctx context.Context, estados []string) (int, error)
	GetSector(ctx context.Context, sectorID string) (models.Sector, error)
	ListarSectores(ctx context.Context) ([]models.Sector, error)
	ResetearContador(ctx context.Context, sectorID string) error
	GetTicketConfig(ctx context.Context) ([]byte, bool, error)
}
