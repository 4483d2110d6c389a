package models

import "time"

type Sector struct {
	SectorID    string `json:"sector_id"`
	Nombre      string `json:"nombre"`
	Codigo      string `json:"codigo"`
	Color       string `json:"color"`
	Activo      bool   `json:"activo"`
	NumeroTurno int64  `json:"numero_turno"`
}

type Turno struct {
	TurnoID       string     `json:"turno_id"`
	Numero        string     `json:"numero"`
	DNI           string     `json:"dni,omitempty"`
	SectorID      string     `json:"sector_id"`
	Estado        string     `json:"estado"`
	OperadorID    *string    `json:"operador_id,omitempty"`
	BoxID         *string    `json:"box_id,omitempty"`
	FechaCreacion time.Time  `json:"fecha_creacion"`
	FechaLlamado  *time.Time `json:"fecha_llamado,omitempty"`
	FechaFin      *time.Time `json:"fecha_fin,omitempty"`
}

type Operador struct {
	OperadorID string   `json:"operador_id"`
	Nombre     string   `json:"nombre"`
	Activo     bool     `json:"activo"`
	Sectores   []string `json:"sectores,omitempty"`
	Boxes      []string `json:"boxes,omitempty"`
}

type Box struct {
	BoxID  string `json:"box_id"`
	Nombre string `json:"nombre"`
	Activo bool   `json:"activo"`
}

const (
	EstadoEspera     = "espera"
	EstadoLlamado    = "llamado"
	EstadoAtendiendo = "atendiendo"
	EstadoFinalizado = "finalizado"
	EstadoAusente    = "ausente"
)

// EstadosActivos are the states in which a turno occupies an operator and
// shows up on the waiting-room monitors.
var EstadosActivos = []string{EstadoLlamado, EstadoAtendiendo}

func EstadoConocido(estado string) bool {
	switch estado {
	case EstadoEspera, EstadoLlamado, EstadoAtendiendo, EstadoFinalizado, EstadoAusente:
		return true
	}
	return false
}
