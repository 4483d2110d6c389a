package ticket

import (
	"testing"
	"time"
)

func TestParseElemento(t *testing.T) {
	cases := []struct {
		raw  string
		want Elemento
		ok   bool
	}{
		{"logo", ElementoLogo, true},
		{"tituloSector", ElementoTituloSector, true},
		{"numeroTurno", ElementoNumeroTurno, true},
		{"separador", ElementoSeparador, true},
		{"separador-1", ElementoSeparador, true},
		{"separador-2", ElementoSeparador, true},
		{"info", ElementoInfo, true},
		{"footer", ElementoFooter, true},
		{"footer-10", ElementoFooter, true},
		{"qr", "", false},
		{"separador-x", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseElemento(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseElemento(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRenderFollowsOrden(t *testing.T) {
	cfg := DefaultConfig()
	datos := Datos{
		Numero: "F042",
		Sector: "Farmacia",
		DNI:    "30123456",
		Fecha:  time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC),
	}
	bloques := Render(cfg, datos)

	want := []Elemento{
		ElementoLogo,
		ElementoSeparador,
		ElementoTituloSector,
		ElementoNumeroTurno,
		ElementoSeparador,
		ElementoInfo,
		ElementoFooter,
	}
	if len(bloques) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(bloques), len(want))
	}
	for i, b := range bloques {
		if b.Elemento != want[i] {
			t.Errorf("block %d = %s, want %s", i, b.Elemento, want[i])
		}
	}

	if bloques[2].Texto != "FARMACIA" {
		t.Errorf("titulo sector = %q, want FARMACIA", bloques[2].Texto)
	}
	if bloques[3].Texto != "F042" {
		t.Errorf("numero = %q, want F042", bloques[3].Texto)
	}
}

func TestRenderSkipsInvisibleAndUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logo.Visible = false
	cfg.Orden = []string{"logo", "qr", "numeroTurno"}

	bloques := Render(cfg, Datos{Numero: "I007", Sector: "Informes", Fecha: time.Now()})
	if len(bloques) != 1 {
		t.Fatalf("got %d blocks, want 1", len(bloques))
	}
	if bloques[0].Elemento != ElementoNumeroTurno {
		t.Fatalf("kept %s, want numeroTurno", bloques[0].Elemento)
	}
}

func TestRenderInfoRespectsFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Info.MostrarDNI = false
	cfg.Info.MostrarHora = false
	cfg.Orden = []string{"info"}

	datos := Datos{DNI: "30123456", Fecha: time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)}
	bloques := Render(cfg, datos)
	if len(bloques) != 1 {
		t.Fatalf("got %d blocks, want 1", len(bloques))
	}
	lineas := bloques[0].Lineas
	if len(lineas) != 1 {
		t.Fatalf("got %d info lines, want 1: %v", len(lineas), lineas)
	}
	if lineas[0] != "Fecha: 14/03/2025" {
		t.Errorf("fecha line = %q", lineas[0])
	}
}

func TestRenderHora12(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Info.MostrarDNI = false
	cfg.Info.MostrarFecha = false
	cfg.Info.FormatoHora24 = false
	cfg.Orden = []string{"info"}

	datos := Datos{Fecha: time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)}
	bloques := Render(cfg, datos)
	if len(bloques) != 1 || len(bloques[0].Lineas) != 1 {
		t.Fatalf("unexpected blocks: %+v", bloques)
	}
	if got := bloques[0].Lineas[0]; got != "Hora: 03:30 PM" {
		t.Errorf("hora line = %q", got)
	}
}

func TestParseConfigPartialKeepsDefaults(t *testing.T) {
	raw := []byte(`{"logo":{"visible":true,"texto":"CLINICA SUR","tamano":24,"negrita":true,"centrado":true}}`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logo.Texto != "CLINICA SUR" {
		t.Errorf("logo texto = %q", cfg.Logo.Texto)
	}
	if !cfg.NumeroTurno.Visible || cfg.NumeroTurno.Tamano != 48 {
		t.Errorf("numeroTurno defaults lost: %+v", cfg.NumeroTurno)
	}
	if len(cfg.Orden) != 7 {
		t.Errorf("orden defaults lost: %v", cfg.Orden)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	if _, err := ParseConfig([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
