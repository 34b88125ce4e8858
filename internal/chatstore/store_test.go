package chatstore

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	agentdb "github.com/codebine/agentchat/internal/db"
	"github.com/codebine/agentchat/internal/db/models"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chatstore.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := agentdb.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStore(db), db
}

func TestCreateChat_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	chat, exchange, err := store.CreateChat("alice@example.com", "hello")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.DisplayName != "hello" {
		t.Fatalf("expected derived title %q, got %q", "hello", chat.DisplayName)
	}
	if exchange.Placeholder.Status != models.StatusInProgress {
		t.Fatalf("expected in-progress placeholder, got %q", exchange.Placeholder.Status)
	}

	msgs, err := store.ListMessages(chat.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	first, second := msgs[0], msgs[1]
	if first.Role != models.RoleUser || first.Content != "hello" || first.Status != models.StatusCompleted {
		t.Fatalf("unexpected first message: %+v", first)
	}
	if second.Role != models.RoleAssistant || second.Status != models.StatusInProgress {
		t.Fatalf("unexpected second message: %+v", second)
	}
	if first.ID >= second.ID {
		t.Fatalf("expected ordered ids, got %d then %d", first.ID, second.ID)
	}
}

func TestAppendMessage_ConflictWhileInProgress(t *testing.T) {
	store, _ := newTestStore(t)

	chat, _, err := store.CreateChat("alice@example.com", "hello")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// The initial placeholder is still in progress.
	if _, err := store.AppendMessage(chat.ID, "alice@example.com", "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The rejected append must not leave a dangling user message behind.
	msgs, err := store.ListMessages(chat.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after rejected append, got %d", len(msgs))
	}
}

func TestAppendMessage_ConcurrentExactlyOneWins(t *testing.T) {
	store, _ := newTestStore(t)

	chat, exchange, err := store.CreateChat("alice@example.com", "hello")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := store.CompleteMessage(exchange.Placeholder.ID, "hi!", nil); err != nil {
		t.Fatalf("complete placeholder: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(chat.ID, "alice@example.com", "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflict int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflict++
		default:
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d conflict=%d", ok, conflict)
	}

	// The invariant holds after the race.
	var inProgress int64
	store.db.Model(&models.Message{}).
		Where("chat_id = ? AND status = ?", chat.ID, models.StatusInProgress).
		Count(&inProgress)
	if inProgress != 1 {
		t.Fatalf("expected 1 in-progress message, got %d", inProgress)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	store, _ := newTestStore(t)

	chat, _, err := store.CreateChat("alice@example.com", "private")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// Absence and foreign ownership must be indistinguishable.
	if _, err := store.ListMessages(chat.ID, "mallory@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := store.ListMessages("00000000-0000-0000-0000-000000000000", "mallory@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent chat, got %v", err)
	}
	if err := store.RenameChat(chat.ID, "mallory@example.com", "mine now"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on foreign rename, got %v", err)
	}
	if err := store.DeleteChat(chat.ID, "mallory@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on foreign delete, got %v", err)
	}
}

func TestDeleteChat_CascadesMessages(t *testing.T) {
	store, db := newTestStore(t)

	chat, _, err := store.CreateChat("alice@example.com", "bye")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := store.DeleteChat(chat.ID, "alice@example.com"); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	var remaining int64
	db.Model(&models.Message{}).Where("chat_id = ?", chat.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected cascade delete, %d messages left", remaining)
	}
	if _, err := store.ListMessages(chat.ID, "alice@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFinalize_TerminalStateIsFinal(t *testing.T) {
	store, _ := newTestStore(t)

	chat, exchange, err := store.CreateChat("alice@example.com", "hello")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	usage := 42
	done, err := store.CompleteMessage(exchange.Placeholder.ID, "answer", &usage)
	if err != nil || !done {
		t.Fatalf("expected first completion to transition, done=%v err=%v", done, err)
	}

	// Duplicate completion and late failure signals are ignored.
	if done, _ := store.CompleteMessage(exchange.Placeholder.ID, "other answer", nil); done {
		t.Fatal("expected duplicate completion to be ignored")
	}
	if done, _ := store.FailMessage(exchange.Placeholder.ID, "late error"); done {
		t.Fatal("expected late failure to be ignored")
	}

	msgs, err := store.ListMessages(chat.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	final := msgs[1]
	if final.Status != models.StatusCompleted || final.Content != "answer" {
		t.Fatalf("terminal message mutated: %+v", final)
	}
	if final.UsageTokens == nil || *final.UsageTokens != 42 {
		t.Fatalf("expected recorded usage, got %+v", final.UsageTokens)
	}
}

func TestListChats_MostRecentlyActiveFirst(t *testing.T) {
	store, _ := newTestStore(t)

	older, olderEx, err := store.CreateChat("alice@example.com", "first chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	newer, _, err := store.CreateChat("alice@example.com", "second chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	// Completing a message counts as activity and reorders the list.
	if _, err := store.CompleteMessage(olderEx.Placeholder.ID, "done", nil); err != nil {
		t.Fatalf("complete message: %v", err)
	}

	chats, err := store.ListChats("alice@example.com")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != older.ID || chats[1].ID != newer.ID {
		t.Fatalf("expected activity ordering [%s %s], got [%s %s]",
			older.ID, newer.ID, chats[0].ID, chats[1].ID)
	}
}

func TestFailOrphaned_ReleasesBlockedChat(t *testing.T) {
	store, db := newTestStore(t)

	chat, exchange, err := store.CreateChat("alice@example.com", "hello")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// The placeholder never reached a terminal state, as after a crash, so
	// every further append conflicts.
	if _, err := store.AppendMessage(chat.ID, "alice@example.com", "still there?"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while placeholder is in progress, got %v", err)
	}

	n, err := store.FailOrphaned("interrupted")
	if err != nil {
		t.Fatalf("fail orphaned: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reconciled message, got %d", n)
	}

	var msg models.Message
	if err := db.First(&msg, exchange.Placeholder.ID).Error; err != nil {
		t.Fatalf("load placeholder: %v", err)
	}
	if msg.Status != models.StatusError || msg.ErrorText != "interrupted" {
		t.Fatalf("expected failed placeholder, got %+v", msg)
	}

	// The chat accepts new turns again.
	if _, err := store.AppendMessage(chat.ID, "alice@example.com", "still there?"); err != nil {
		t.Fatalf("append after reconciliation: %v", err)
	}
}
