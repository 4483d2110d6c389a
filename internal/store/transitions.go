package store

import "turnero/internal/models"

var transitionMap = map[string][]string{
	"llamar":    {models.EstadoEspera},
	"rellamar":  {models.EstadoLlamado, models.EstadoAtendiendo},
	"atender":   {models.EstadoLlamado},
	"finalizar": {models.EstadoLlamado, models.EstadoAtendiendo},
	"ausente":   {models.EstadoLlamado, models.EstadoAtendiendo},
}

// Allowed returns the source states accion may fire from.
func Allowed(accion string) []string {
	return transitionMap[accion]
}

func ValidTransition(accion, fromEstado string) bool {
	allowed, ok := transitionMap[accion]
	if !ok {
		return false
	}
	for _, estado := range allowed {
		if estado == fromEstado {
			return true
		}
	}
	return false
}
