package hub

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBroadcastFiltraPorSector(t *testing.T) {
	h := New(zerolog.Nop())

	todos := &Client{ID: "todos", Send: make(chan []byte, 1)}
	farmacia := &Client{ID: "farmacia", Send: make(chan []byte, 1), Subscription: Subscription{SectorIDs: []string{"sec-1"}}}
	informes := &Client{ID: "informes", Send: make(chan []byte, 1), Subscription: Subscription{SectorIDs: []string{"sec-2"}}}
	h.Register(todos)
	h.Register(farmacia)
	h.Register(informes)

	h.Broadcast([]byte(`{"tipo":"turno_llamado"}`), "sec-1")

	if len(todos.Send) != 1 {
		t.Error("unfiltered client did not receive broadcast")
	}
	if len(farmacia.Send) != 1 {
		t.Error("matching client did not receive broadcast")
	}
	if len(informes.Send) != 0 {
		t.Error("non-matching client received broadcast")
	}
}

func TestBroadcastSinSectorLlegaATodos(t *testing.T) {
	h := New(zerolog.Nop())

	filtrado := &Client{ID: "filtrado", Send: make(chan []byte, 1), Subscription: Subscription{SectorIDs: []string{"sec-1"}}}
	h.Register(filtrado)

	// Events without a sector (like purges) only reach unfiltered clients.
	h.Broadcast([]byte(`{"tipo":"turnos_purgados"}`), "")

	if len(filtrado.Send) != 0 {
		t.Error("filtered client received sectorless broadcast")
	}
}

func TestBroadcastNoBloqueaClienteLento(t *testing.T) {
	h := New(zerolog.Nop())

	lento := &Client{ID: "lento", Send: make(chan []byte, 1)}
	h.Register(lento)
	lento.Send <- []byte("pendiente")

	done := make(chan struct{})
	go func() {
		h.Broadcast([]byte("nuevo"), "sec-1")
		close(done)
	}()
	<-done

	if got := <-lento.Send; string(got) != "pendiente" {
		t.Fatalf("queued message clobbered: %q", got)
	}
}

func TestUpdateSubscription(t *testing.T) {
	h := New(zerolog.Nop())

	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	h.Register(client)
	h.UpdateSubscription(client, Subscription{SectorIDs: []string{"sec-2"}})

	h.Broadcast([]byte("a"), "sec-1")
	if len(client.Send) != 0 {
		t.Error("received broadcast for unsubscribed sector")
	}

	h.Broadcast([]byte("b"), "sec-2")
	if len(client.Send) != 1 {
		t.Error("did not receive broadcast for subscribed sector")
	}
}

func TestUnregisterCierraCanal(t *testing.T) {
	h := New(zerolog.Nop())

	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	h.Register(client)
	h.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Error("send channel not closed on unregister")
	}

	h.Broadcast([]byte("a"), "sec-1")
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		raw    string
		ok     bool
		action string
	}{
		{`{"action":"subscribe","sector_ids":["sec-1"]}`, true, "subscribe"},
		{`{"action":"unsubscribe"}`, true, "unsubscribe"},
		{`{"action":"ping"}`, false, ""},
		{`not json`, false, ""},
	}
	for _, tc := range cases {
		msg, ok := ParseSubscribe([]byte(tc.raw))
		if ok != tc.ok {
			t.Errorf("ParseSubscribe(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			continue
		}
		if ok && msg.Action != tc.action {
			t.Errorf("ParseSubscribe(%q) action = %q, want %q", tc.raw, msg.Action, tc.action)
		}
	}
}
