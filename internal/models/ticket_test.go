package models

import (
	"errors"
	"testing"
)

func newTestTicket(names ...string) *KitchenTicket {
	items := make([]TicketItem, 0, len(names))
	for i, name := range names {
		items = append(items, NewTicketItem(
			"order-item-"+string(rune('a'+i)), name, 1, nil, "MAIN"))
	}
	return NewKitchenTicket("order-1", "table-1", items)
}

func TestDetermineStation(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  string
	}{
		{"grill by steak", []string{"Caesar Salad", "Ribeye Steak"}, StationGrill},
		{"grill by burger", []string{"Cheeseburger"}, StationGrill},
		{"grill case insensitive", []string{"BURGER Deluxe"}, StationGrill},
		{"default hot station", []string{"Pasta", "Soup"}, StationHot},
		{"empty ticket", nil, StationHot},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ticket := newTestTicket(tc.items...)
			if ticket.StationID != tc.want {
				t.Fatalf("station = %s, want %s", ticket.StationID, tc.want)
			}
		})
	}
}

func TestEstimateMinutes(t *testing.T) {
	tests := []struct {
		itemCount int
		want      int
	}{
		{0, 10},
		{1, 15},
		{3, 25},
	}
	for _, tc := range tests {
		if got := EstimateMinutes(tc.itemCount); got != tc.want {
			t.Fatalf("EstimateMinutes(%d) = %d, want %d", tc.itemCount, got, tc.want)
		}
	}
}

func TestTicketStart(t *testing.T) {
	ticket := newTestTicket("Pasta", "Soup")
	if ticket.Status != TicketStatusNew {
		t.Fatalf("new ticket status = %s, want NEW", ticket.Status)
	}

	ticket.Start()

	if ticket.Status != TicketStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", ticket.Status)
	}
	if ticket.StartedAt == nil {
		t.Fatal("ticket StartedAt not stamped")
	}
	for _, item := range ticket.Items {
		if item.Status != TicketItemPreparing {
			t.Fatalf("item status = %s, want PREPARING", item.Status)
		}
		if item.StartedAt == nil {
			t.Fatal("item StartedAt not stamped")
		}
	}
}

func TestTicketFanIn(t *testing.T) {
	ticket := newTestTicket("Pasta", "Soup", "Salad")
	ticket.Start()

	completions := 0
	for i, item := range ticket.Items {
		done, err := ticket.MarkItemReady(item.ID)
		if err != nil {
			t.Fatalf("MarkItemReady returned error: %v", err)
		}
		if done {
			completions++
		}
		if i < len(ticket.Items)-1 && done {
			t.Fatalf("ticket completed after %d of %d items", i+1, len(ticket.Items))
		}
	}

	if completions != 1 {
		t.Fatalf("completions = %d, want exactly 1", completions)
	}
	if ticket.Status != TicketStatusReady {
		t.Fatalf("status = %s, want READY", ticket.Status)
	}
	if ticket.CompletedAt == nil {
		t.Fatal("ticket CompletedAt not stamped")
	}
}

func TestTicketFanInAnyOrder(t *testing.T) {
	ticket := newTestTicket("A", "B", "C")
	ticket.Start()

	order := []int{2, 0, 1}
	for i, idx := range order {
		done, err := ticket.MarkItemReady(ticket.Items[idx].ID)
		if err != nil {
			t.Fatalf("MarkItemReady returned error: %v", err)
		}
		if want := i == len(order)-1; done != want {
			t.Fatalf("completed = %v after %d items, want %v", done, i+1, want)
		}
	}
}

func TestMarkItemReadyUnknownItem(t *testing.T) {
	ticket := newTestTicket("Pasta")
	if _, err := ticket.MarkItemReady("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderItemIDs(t *testing.T) {
	ticket := newTestTicket("A", "B", "C")
	ids := ticket.OrderItemIDs()
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	for i, item := range ticket.Items {
		if ids[i] != item.OrderItemID {
			t.Fatalf("ids[%d] = %s, want %s", i, ids[i], item.OrderItemID)
		}
	}
}
