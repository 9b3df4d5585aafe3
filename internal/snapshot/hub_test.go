package snapshot

import (
	"context"
	"testing"

	"faturas/internal/core"
	"faturas/internal/storage"
	"faturas/internal/storage/memory"
)

func TestHubDeliversFullCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hub := NewHub(store, nil)

	var got [][]core.Card
	var order []string
	unsub := hub.Subscribe("u1", core.CollectionCards, func(c core.Collection, snap core.Dataset) {
		order = append(order, "first")
		got = append(got, snap.Cards)
	})
	hub.Subscribe("u1", core.CollectionCards, func(core.Collection, core.Dataset) {
		order = append(order, "second")
	})

	card := core.Card{ID: "c1", Name: "Nubank", ClosingDay: 3, DueDay: 10}
	if err := store.Apply(ctx, "u1", storage.NewBatch(storage.PutCard{Card: card})); err != nil {
		t.Fatal(err)
	}
	hub.Notify(ctx, "u1", core.CollectionCards, core.CollectionLoans)

	if len(got) != 1 || len(got[0]) != 1 || got[0][0].ID != "c1" {
		t.Fatalf("snapshots = %+v", got)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v", order)
	}

	unsub()
	unsub()
	hub.Notify(ctx, "u1", core.CollectionCards)
	if len(got) != 1 {
		t.Errorf("unsubscribed listener still called")
	}
	if n := hub.Listeners("u1"); n != 1 {
		t.Errorf("listeners = %d, want 1", n)
	}
}

func TestHubScopesByUser(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	called := false
	hub.Subscribe("u1", core.CollectionExpenses, func(core.Collection, core.Dataset) { called = true })

	hub.Notify(context.Background(), "u2", core.CollectionExpenses)
	if called {
		t.Fatal("listener of u1 notified for u2")
	}
}
