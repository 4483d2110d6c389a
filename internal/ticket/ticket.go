// Package ticket turns a turno into the printable blocks of a thermal
// ticket. The layout is data driven: the admin stores a JSON config whose
// orden list decides which elements appear and in what order.
package ticket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Elemento identifies a printable section of the ticket.
type Elemento string

const (
	ElementoLogo         Elemento = "logo"
	ElementoTituloSector Elemento = "tituloSector"
	ElementoNumeroTurno  Elemento = "numeroTurno"
	ElementoSeparador    Elemento = "separador"
	ElementoInfo         Elemento = "info"
	ElementoFooter       Elemento = "footer"
)

// ParseElemento resolves an orden entry to its element. Repeated elements
// carry a numeric suffix ("separador-1", "separador-2") so the list can hold
// the same element more than once; the suffix is ignored here. Unknown
// entries return false so stale configs degrade to skipping the entry.
func ParseElemento(raw string) (Elemento, bool) {
	base := raw
	if i := strings.LastIndex(raw, "-"); i > 0 {
		suffix := raw[i+1:]
		digits := len(suffix) > 0
		for _, c := range suffix {
			if c < '0' || c > '9' {
				digits = false
				break
			}
		}
		if digits {
			base = raw[:i]
		}
	}
	switch Elemento(base) {
	case ElementoLogo, ElementoTituloSector, ElementoNumeroTurno,
		ElementoSeparador, ElementoInfo, ElementoFooter:
		return Elemento(base), true
	}
	return "", false
}

type EstiloTexto struct {
	Visible    bool `json:"visible"`
	Tamano     int  `json:"tamano"`
	Negrita    bool `json:"negrita"`
	Subrayado  bool `json:"subrayado"`
	Centrado   bool `json:"centrado"`
	Mayusculas bool `json:"mayusculas"`
}

type ConfigLogo struct {
	EstiloTexto
	Texto string `json:"texto"`
}

type ConfigInfo struct {
	EstiloTexto
	MostrarDNI    bool   `json:"mostrarDni"`
	MostrarFecha  bool   `json:"mostrarFecha"`
	MostrarHora   bool   `json:"mostrarHora"`
	FormatoFecha  string `json:"formatoFecha"`
	FormatoHora24 bool   `json:"formatoHora24"`
}

type ConfigFooter struct {
	EstiloTexto
	Lineas []string `json:"lineas"`
}

type ConfigPapel struct {
	AnchoMM    int `json:"anchoMm"`
	Columnas   int `json:"columnas"`
	MargenSup  int `json:"margenSuperior"`
	MargenInf  int `json:"margenInferior"`
}

// Config mirrors the JSON stored by the admin panel.
type Config struct {
	Papel        ConfigPapel  `json:"papel"`
	Logo         ConfigLogo   `json:"logo"`
	TituloSector EstiloTexto  `json:"tituloSector"`
	NumeroTurno  EstiloTexto  `json:"numeroTurno"`
	Info         ConfigInfo   `json:"info"`
	Separador    EstiloTexto  `json:"separador"`
	Footer       ConfigFooter `json:"footer"`
	Orden        []string     `json:"orden"`
}

// DefaultConfig is the layout used when no stored config exists.
func DefaultConfig() Config {
	return Config{
		Papel: ConfigPapel{
			AnchoMM:   80,
			Columnas:  32,
			MargenSup: 1,
			MargenInf: 3,
		},
		Logo: ConfigLogo{
			EstiloTexto: EstiloTexto{Visible: true, Tamano: 24, Negrita: true, Centrado: true},
			Texto:       "HOSPITAL",
		},
		TituloSector: EstiloTexto{Visible: true, Tamano: 20, Negrita: true, Centrado: true, Mayusculas: true},
		NumeroTurno:  EstiloTexto{Visible: true, Tamano: 48, Negrita: true, Centrado: true},
		Info: ConfigInfo{
			EstiloTexto:   EstiloTexto{Visible: true, Tamano: 14, Centrado: true},
			MostrarDNI:    true,
			MostrarFecha:  true,
			MostrarHora:   true,
			FormatoFecha:  "dd/mm/yyyy",
			FormatoHora24: true,
		},
		Separador: EstiloTexto{Visible: true, Tamano: 14, Centrado: true},
		Footer: ConfigFooter{
			EstiloTexto: EstiloTexto{Visible: true, Tamano: 12, Centrado: true},
			Lineas: []string{
				"Espere en la sala a ser llamado",
				"¡Gracias por su paciencia!",
			},
		},
		Orden: []string{
			"logo",
			"separador-1",
			"tituloSector",
			"numeroTurno",
			"separador-2",
			"info",
			"footer",
		},
	}
}

// ParseConfig decodes a stored config on top of the defaults, so a partial
// document keeps default values for the sections it omits.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode ticket config: %w", err)
	}
	if len(cfg.Orden) == 0 {
		cfg.Orden = DefaultConfig().Orden
	}
	return cfg, nil
}

// Datos holds the per-turno values interpolated into the layout.
type Datos struct {
	Numero string
	Sector string
	Color  string
	DNI    string
	Fecha  time.Time
}

// Bloque is one rendered section, ready for an output encoder.
type Bloque struct {
	Elemento Elemento
	Texto    string
	Lineas   []string
	Estilo   EstiloTexto
}

// Render walks cfg.Orden and produces the visible blocks in order. Unknown
// and invisible entries are skipped.
func Render(cfg Config, datos Datos) []Bloque {
	bloques := make([]Bloque, 0, len(cfg.Orden))
	for _, entrada := range cfg.Orden {
		elemento, ok := ParseElemento(entrada)
		if !ok {
			continue
		}
		bloque, ok := renderElemento(cfg, datos, elemento)
		if !ok {
			continue
		}
		bloques = append(bloques, bloque)
	}
	return bloques
}

func renderElemento(cfg Config, datos Datos, elemento Elemento) (Bloque, bool) {
	switch elemento {
	case ElementoLogo:
		if !cfg.Logo.Visible {
			return Bloque{}, false
		}
		return Bloque{Elemento: elemento, Texto: applyCase(cfg.Logo.Texto, cfg.Logo.EstiloTexto), Estilo: cfg.Logo.EstiloTexto}, true
	case ElementoTituloSector:
		if !cfg.TituloSector.Visible {
			return Bloque{}, false
		}
		return Bloque{Elemento: elemento, Texto: applyCase(datos.Sector, cfg.TituloSector), Estilo: cfg.TituloSector}, true
	case ElementoNumeroTurno:
		if !cfg.NumeroTurno.Visible {
			return Bloque{}, false
		}
		return Bloque{Elemento: elemento, Texto: datos.Numero, Estilo: cfg.NumeroTurno}, true
	case ElementoSeparador:
		if !cfg.Separador.Visible {
			return Bloque{}, false
		}
		return Bloque{Elemento: elemento, Estilo: cfg.Separador}, true
	case ElementoInfo:
		if !cfg.Info.Visible {
			return Bloque{}, false
		}
		lineas := infoLineas(cfg.Info, datos)
		if len(lineas) == 0 {
			return Bloque{}, false
		}
		return Bloque{Elemento: elemento, Lineas: lineas, Estilo: cfg.Info.EstiloTexto}, true
	case ElementoFooter:
		if !cfg.Footer.Visible || len(cfg.Footer.Lineas) == 0 {
			return Bloque{}, false
		}
		lineas := make([]string, len(cfg.Footer.Lineas))
		for i, l := range cfg.Footer.Lineas {
			lineas[i] = applyCase(l, cfg.Footer.EstiloTexto)
		}
		return Bloque{Elemento: elemento, Lineas: lineas, Estilo: cfg.Footer.EstiloTexto}, true
	}
	return Bloque{}, false
}

func infoLineas(info ConfigInfo, datos Datos) []string {
	var lineas []string
	if info.MostrarDNI && datos.DNI != "" {
		lineas = append(lineas, "DNI: "+datos.DNI)
	}
	if info.MostrarFecha {
		lineas = append(lineas, "Fecha: "+datos.Fecha.Format(layoutFecha(info.FormatoFecha)))
	}
	if info.MostrarHora {
		lineas = append(lineas, "Hora: "+datos.Fecha.Format(layoutHora(info.FormatoHora24)))
	}
	return lineas
}

func layoutFecha(formato string) string {
	switch formato {
	case "mm/dd/yyyy":
		return "01/02/2006"
	case "yyyy-mm-dd":
		return "2006-01-02"
	default: // dd/mm/yyyy
		return "02/01/2006"
	}
}

func layoutHora(hora24 bool) string {
	if hora24 {
		return "15:04"
	}
	return "03:04 PM"
}

func applyCase(texto string, estilo EstiloTexto) string {
	if estilo.Mayusculas {
		return strings.ToUpper(texto)
	}
	return texto
}
