package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/role-dashboard/models"
)

func TestMemoryStore_ReadWriteClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	_, ok, err := store.Read(ctx, "s1", SlotToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "s1", SlotToken, "tok"))
	require.NoError(t, store.Write(ctx, "s1", SlotUser, `{"name":"A"}`))

	raw, ok, err := store.Read(ctx, "s1", SlotToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", raw)

	require.NoError(t, store.Clear(ctx, "s1", SlotToken))
	_, ok, _ = store.Read(ctx, "s1", SlotToken)
	assert.False(t, ok)
	_, ok, _ = store.Read(ctx, "s1", SlotUser)
	assert.True(t, ok, "clearing one slot keeps the other")

	require.NoError(t, store.Clear(ctx, "s1"))
	_, ok, _ = store.Read(ctx, "s1", SlotUser)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_RejectsEmptySessionID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	_, _, err := store.Read(ctx, "", SlotUser)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
	assert.ErrorIs(t, store.Write(ctx, "", SlotUser, "x"), ErrInvalidSessionID)
	assert.ErrorIs(t, store.Clear(ctx, ""), ErrInvalidSessionID)
}

func TestMemoryStore_PublishesChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	var got []Change
	unsubscribe := store.OnChange(func(c Change) {
		// The write must already be visible when subscribers run.
		if !c.Cleared {
			_, ok, _ := store.Read(ctx, c.SessionID, c.Slot)
			assert.True(t, ok)
		}
		got = append(got, c)
	})

	require.NoError(t, store.Write(ctx, "s1", SlotUser, "{}"))
	require.NoError(t, store.Clear(ctx, "s1"))
	unsubscribe()
	require.NoError(t, store.Write(ctx, "s1", SlotToken, "t"))

	assert.Equal(t, []Change{
		{SessionID: "s1", Slot: SlotUser},
		{SessionID: "s1", Slot: SlotToken, Cleared: true},
		{SessionID: "s1", Slot: SlotUser, Cleared: true},
	}, got)
}

func TestMemoryStore_WriteSlots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	var got []Change
	store.OnChange(func(c Change) {
		// Both slots are visible before the first change is delivered.
		_, tokOK, _ := store.Read(ctx, c.SessionID, SlotToken)
		_, userOK, _ := store.Read(ctx, c.SessionID, SlotUser)
		assert.True(t, tokOK && userOK)
		got = append(got, c)
	})

	require.NoError(t, store.WriteSlots(ctx, "s1", map[Slot]string{
		SlotUser:  "{}",
		SlotToken: "tok",
	}))
	assert.Equal(t, []Change{
		{SessionID: "s1", Slot: SlotToken},
		{SessionID: "s1", Slot: SlotUser},
	}, got)

	assert.ErrorIs(t, store.WriteSlots(ctx, "", map[Slot]string{SlotToken: "tok"}), ErrInvalidSessionID)
}

func TestMemoryStore_ReadExpiring(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Write(ctx, "s1", SlotToken, "tok"))

	raw, expires, ok, err := store.ReadExpiring(ctx, "s1", SlotToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", raw)
	assert.Equal(t, now.Add(time.Minute), expires)

	_, expires, ok, err = NewMemoryStore(0).ReadExpiring(ctx, "s1", SlotToken)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, expires.IsZero())
}

func TestMemoryStore_IdleExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Write(ctx, "s1", SlotToken, "tok"))
	require.NoError(t, store.Write(ctx, "s2", SlotToken, "tok"))

	now = now.Add(30 * time.Second)
	require.NoError(t, store.Write(ctx, "s2", SlotUser, "{}"))

	now = now.Add(45 * time.Second)
	_, ok, _ := store.Read(ctx, "s1", SlotToken)
	assert.False(t, ok, "idle session reads as empty")
	_, ok, _ = store.Read(ctx, "s2", SlotToken)
	assert.True(t, ok)

	var cleared []string
	store.OnChange(func(c Change) { cleared = append(cleared, c.SessionID) })
	assert.Equal(t, 1, store.Sweep(now))
	assert.Equal(t, []string{"s1", "s1"}, cleared)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_SweepWithoutTTL(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.Write(context.Background(), "s1", SlotToken, "tok"))
	assert.Equal(t, 0, store.Sweep(time.Now().Add(24*time.Hour)))
}

func TestMemoryStore_UserRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	in := &models.User{Name: "Ann", Email: "ann@example.com", Roles: []string{"user", "admin"}}

	raw, err := in.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "s1", SlotUser, raw))

	stored, ok, err := store.Read(ctx, "s1", SlotUser)
	require.NoError(t, err)
	require.True(t, ok)

	out, err := models.ParseUser(stored)
	require.NoError(t, err)
	assert.Equal(t, in.RoleSet(), out.RoleSet())
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	var a, b int
	unA := hub.Subscribe(func(Change) { a++ })
	hub.Subscribe(func(Change) { b++ })

	hub.Publish(Change{SessionID: "x"})
	unA()
	unA()
	hub.Publish(Change{SessionID: "x"})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, hub.Len())
}
