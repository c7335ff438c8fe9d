package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/taalmeet/internal/domain"
)

func TestCreateMessage_InsertsAndReadsBack(t *testing.T) {
	db := newTestDB(t, &domain.Conversation{}, &domain.Message{})
	if err := db.Create(&domain.Conversation{ID: "c1", UserA: "a", UserB: "b"}).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	msg, err := CreateMessage(db, "c1", "a", "hallo")
	if err != nil {
		t.Fatalf("CreateMessage error: %v", err)
	}
	if msg.ID == "" || msg.ConversationID != "c1" || msg.SenderID != "a" || msg.Content != "hallo" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreatedAt.IsZero() || time.Since(msg.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", msg.CreatedAt)
	}

	got, err := GetMessage(db, msg.ID)
	if err != nil || got.ID != msg.ID {
		t.Fatalf("GetMessage: got=%+v err=%v", got, err)
	}
	if _, err := GetMessage(db, "nope"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestListMessages_OrderAndLimit(t *testing.T) {
	db := newTestDB(t, &domain.Message{})

	// same CreatedAt for a and b; ID breaks the tie
	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.Message{
		{ID: "b", ConversationID: "c2", SenderID: "u", Content: "y", CreatedAt: t0},
		{ID: "z", ConversationID: "c2", SenderID: "u", Content: "z", CreatedAt: t0.Add(time.Second)},
		{ID: "a", ConversationID: "c2", SenderID: "u", Content: "x", CreatedAt: t0},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", seed[i].ID, err)
		}
	}

	all, err := ListMessages(db, "c2", 0)
	if err != nil {
		t.Fatalf("ListMessages(all) error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "z" {
		t.Fatalf("unexpected order/all: %+v", all)
	}
	top2, err := ListMessages(db, "c2", 2)
	if err != nil || len(top2) != 2 || top2[1].ID != "b" {
		t.Fatalf("unexpected order/limit: %+v err=%v", top2, err)
	}
}

func TestCountMessages_ErrorAndSuccess(t *testing.T) {
	if _, err := CountMessages(newTestDB(t), "cx"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}

	db := newTestDB(t, &domain.Message{})
	for _, m := range []domain.Message{
		{ID: "m1", ConversationID: "cx", SenderID: "u", Content: "1"},
		{ID: "m2", ConversationID: "cx", SenderID: "v", Content: "2"},
		{ID: "m3", ConversationID: "cy", SenderID: "u", Content: "3"},
	} {
		m := m
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	total, err := CountMessages(db, "cx")
	if err != nil || total != 2 {
		t.Fatalf("CountMessages = %d, %v", total, err)
	}
}

func TestListMessagesPage_Pagination(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	base := time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		m := domain.Message{
			ID:             string(rune('a' + i - 1)),
			ConversationID: "c3",
			SenderID:       "u",
			Content:        "x",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed m%d: %v", i, err)
		}
	}
	out, err := ListMessagesPage(db, "c3", 1, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage error: %v", err)
	}
	if len(out) != 2 || out[0].ID != "b" || out[1].ID != "c" {
		t.Fatalf("unexpected page slice: %+v", out)
	}
}

func TestLastMessage_UnreadAndMarkRead(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()

	if _, err := LastMessage(ctx, db, "c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty conversation, got %v", err)
	}

	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	seed := []domain.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hoi", CreatedAt: base},
		{ID: "m2", ConversationID: "c1", SenderID: "bob", Content: "hi", CreatedAt: base.Add(time.Second)},
		{ID: "m3", ConversationID: "c1", SenderID: "bob", Content: "hoe gaat het?", CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	last, err := LastMessage(ctx, db, "c1")
	if err != nil || last.ID != "m3" {
		t.Fatalf("LastMessage = %+v, %v", last, err)
	}

	unread, err := CountUnread(ctx, db, "c1", "alice")
	if err != nil || unread != 2 {
		t.Fatalf("CountUnread(alice) = %d, %v", unread, err)
	}

	at := base.Add(time.Hour)
	n, err := MarkRead(ctx, db, "c1", "alice", at)
	if err != nil || n != 2 {
		t.Fatalf("MarkRead = %d, %v", n, err)
	}
	var m2 domain.Message
	if err := db.First(&m2, "id = ?", "m2").Error; err != nil {
		t.Fatalf("reload m2: %v", err)
	}
	if !m2.IsRead || m2.ReadAt == nil || !m2.ReadAt.Equal(at) {
		t.Fatalf("m2 not marked read: %+v", m2)
	}

	// Alice's own message stays unread for bob.
	unread, _ = CountUnread(ctx, db, "c1", "bob")
	if unread != 1 {
		t.Fatalf("CountUnread(bob) = %d, want 1", unread)
	}

	// Marking again is a no-op.
	if n, _ := MarkRead(ctx, db, "c1", "alice", at); n != 0 {
		t.Fatalf("second MarkRead touched %d rows", n)
	}
}

func TestListLatestMessages_TailInDisplayOrder(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		m := domain.Message{ID: id, ConversationID: "c", SenderID: "u", Content: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	out, err := ListLatestMessages(context.Background(), db, "c", 2)
	if err != nil {
		t.Fatalf("ListLatestMessages: %v", err)
	}
	if len(out) != 2 || out[0].ID != "m3" || out[1].ID != "m4" {
		t.Fatalf("unexpected tail: %+v", out)
	}
}
