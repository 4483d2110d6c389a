package print

import (
	"bytes"
	"strings"

	"turnero/internal/ticket"
)

// ESC/POS command sequences for the thermal printers in the kiosks.
var (
	cmdInit        = []byte{0x1B, '@'}
	cmdAlignLeft   = []byte{0x1B, 0x61, 0x00}
	cmdAlignCenter = []byte{0x1B, 0x61, 0x01}
	cmdBoldOn      = []byte{0x1B, 0x45, 0x01}
	cmdBoldOff     = []byte{0x1B, 0x45, 0x00}
	cmdDoubleOn    = []byte{0x1B, 0x21, 0x30}
	cmdDoubleOff   = []byte{0x1B, 0x21, 0x00}
	cmdUnderOn     = []byte{0x1B, 0x2D, 0x01}
	cmdUnderOff    = []byte{0x1B, 0x2D, 0x00}
	cmdCut         = []byte{0x1D, 'V', 0x41, 0x03}
)

const lineaSeparador = "================================\n"

// doubles when the configured font size is at least this; thermal heads only
// distinguish normal and double width/height.
const tamanoDoble = 30

// EncodeESCPOS serializes the rendered blocks into the raw byte stream a
// thermal printer consumes, ending with a paper cut.
func EncodeESCPOS(bloques []ticket.Bloque) []byte {
	var buf bytes.Buffer
	buf.Write(cmdInit)
	for _, bloque := range bloques {
		writeBloque(&buf, bloque)
	}
	buf.WriteString("\n\n")
	buf.Write(cmdCut)
	return buf.Bytes()
}

func writeBloque(buf *bytes.Buffer, bloque ticket.Bloque) {
	if bloque.Estilo.Centrado {
		buf.Write(cmdAlignCenter)
	} else {
		buf.Write(cmdAlignLeft)
	}
	if bloque.Estilo.Negrita {
		buf.Write(cmdBoldOn)
	}
	if bloque.Estilo.Subrayado {
		buf.Write(cmdUnderOn)
	}
	if bloque.Estilo.Tamano >= tamanoDoble {
		buf.Write(cmdDoubleOn)
	}

	switch {
	case bloque.Elemento == ticket.ElementoSeparador:
		buf.WriteString(lineaSeparador)
	case len(bloque.Lineas) > 0:
		for _, linea := range bloque.Lineas {
			buf.WriteString(linea)
			buf.WriteByte('\n')
		}
	default:
		buf.WriteString(bloque.Texto)
		buf.WriteByte('\n')
	}

	if bloque.Estilo.Tamano >= tamanoDoble {
		buf.Write(cmdDoubleOff)
	}
	if bloque.Estilo.Subrayado {
		buf.Write(cmdUnderOff)
	}
	if bloque.Estilo.Negrita {
		buf.Write(cmdBoldOff)
	}
}

// RenderDocumento produces the plain text variant of the ticket, used for
// spooler printing and capture files where raw ESC/POS bytes are useless.
func RenderDocumento(bloques []ticket.Bloque) string {
	var sb strings.Builder
	for _, bloque := range bloques {
		switch {
		case bloque.Elemento == ticket.ElementoSeparador:
			sb.WriteString(lineaSeparador)
		case len(bloque.Lineas) > 0:
			for _, linea := range bloque.Lineas {
				sb.WriteString(linea)
				sb.WriteByte('\n')
			}
		default:
			sb.WriteString(bloque.Texto)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
