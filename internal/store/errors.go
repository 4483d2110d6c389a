package store

import (
	"errors"
	"fmt"

	"turnero/internal/models"
)

var (
	ErrSectorNoDisponible = errors.New("sector no disponible")
	ErrTurnoNoEncontrado  = errors.New("turno no encontrado")
	ErrBoxNoEncontrado    = errors.New("box no encontrado")
	ErrEstadoInvalido     = errors.New("estado de turno invalido")
	ErrTurnoNoActivo      = errors.New("turno no activo")
	ErrColaVacia          = errors.New("no hay turnos en espera")
)

// OperadorOcupadoError signals that the operator already holds a turno in
// llamado or atendiendo. It carries the conflicting turno so the operator UI
// can offer to resume it.
type OperadorOcupadoError struct {
	Turno models.Turno
}

func (e *OperadorOcupadoError) Error() string {
	return fmt.Sprintf("operador con turno activo %s", e.Turno.Numero)
}
