// Package print writes tickets to whatever output is available. It tries a
// raw thermal device first, then the system spooler, and finally a capture
// file, so a kiosk without a working printer still records every ticket.
package print

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"turnero/internal/ticket"
)

// ErrImpresionFallida reports that every output tier failed, the capture file
// included. Ticket creation never fails because of it.
var ErrImpresionFallida = errors.New("impresion: todos los destinos fallaron")

const (
	TierDispositivo = "dispositivo"
	TierSpooler     = "spooler"
	TierArchivo     = "archivo"
)

// Resultado describes where a ticket ended up. Degradado is set when the
// ticket printed only after at least one higher tier failed.
type Resultado struct {
	Tier      string
	Archivo   string
	Degradado bool
}

type Options struct {
	Device     string
	Spooler    string
	CaptureDir string
	// TempTTL is how long spool temp files live before cleanup.
	TempTTL time.Duration
}

// Pipeline drives the tiered output. The write/run hooks exist so tests can
// exercise the fallback ladder without devices or spoolers.
type Pipeline struct {
	opts   Options
	logger zerolog.Logger

	writeDevice func(device string, raw []byte) error
	runSpooler  func(printer, path string) error
	now         func() time.Time
	afterFunc   func(d time.Duration, f func()) *time.Timer
}

func NewPipeline(opts Options, logger zerolog.Logger) *Pipeline {
	if opts.CaptureDir == "" {
		opts.CaptureDir = "tickets-generados"
	}
	if opts.TempTTL <= 0 {
		opts.TempTTL = time.Minute
	}
	return &Pipeline{
		opts:        opts,
		logger:      logger,
		writeDevice: writeDevice,
		runSpooler:  runSpooler,
		now:         time.Now,
		afterFunc:   time.AfterFunc,
	}
}

// Imprimir runs the fallback ladder for one rendered ticket.
func (p *Pipeline) Imprimir(bloques []ticket.Bloque, numero string) (Resultado, error) {
	degradado := false

	if p.opts.Device != "" {
		raw := EncodeESCPOS(bloques)
		if err := p.writeDevice(p.opts.Device, raw); err == nil {
			return Resultado{Tier: TierDispositivo, Degradado: degradado}, nil
		} else {
			p.logger.Warn().Err(err).Str("device", p.opts.Device).Msg("impresion directa fallida")
			degradado = true
		}
	}

	if p.opts.Spooler != "" {
		if err := p.imprimirSpooler(bloques); err == nil {
			return Resultado{Tier: TierSpooler, Degradado: degradado}, nil
		} else {
			p.logger.Warn().Err(err).Str("printer", p.opts.Spooler).Msg("impresion por spooler fallida")
			degradado = true
		}
	}

	path, err := p.capturar(bloques, numero)
	if err != nil {
		p.logger.Error().Err(err).Msg("captura de ticket fallida")
		return Resultado{}, ErrImpresionFallida
	}
	return Resultado{Tier: TierArchivo, Archivo: path, Degradado: true}, nil
}

func (p *Pipeline) imprimirSpooler(bloques []ticket.Bloque) error {
	f, err := os.CreateTemp("", "turno-*.txt")
	if err != nil {
		return err
	}
	path := f.Name()
	_, werr := f.WriteString(RenderDocumento(bloques))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		if werr != nil {
			return werr
		}
		return cerr
	}

	// The spooler reads the file asynchronously, so removal is deferred.
	p.afterFunc(p.opts.TempTTL, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Debug().Err(err).Str("path", path).Msg("limpieza de temporal fallida")
		}
	})

	return p.runSpooler(p.opts.Spooler, path)
}

func (p *Pipeline) capturar(bloques []ticket.Bloque, numero string) (string, error) {
	if err := os.MkdirAll(p.opts.CaptureDir, 0o755); err != nil {
		return "", err
	}
	nombre := fmt.Sprintf("ticket-%s-%s.txt", sanitize(numero), p.now().Format("20060102-150405.000"))
	path := filepath.Join(p.opts.CaptureDir, nombre)
	if err := os.WriteFile(path, []byte(RenderDocumento(bloques)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, s)
}

func writeDevice(device string, raw []byte) error {
	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.Write(raw)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func runSpooler(printer, path string) error {
	if runtime.GOOS == "windows" {
		cmd := exec.Command("powershell", "-NoProfile", "-Command",
			fmt.Sprintf("Get-Content -Raw %q | Out-Printer -Name %q", path, printer))
		return cmd.Run()
	}
	return exec.Command("lp", "-d", printer, "-o", "raw", path).Run()
}
