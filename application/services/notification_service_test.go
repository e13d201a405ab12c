package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/events"
	"flopods-backend/infrastructure/persistence/memory"
)

func newNotificationFixture() (*NotificationService, *capturePublisher) {
	store := memory.NewStore()
	publisher := &capturePublisher{}
	return NewNotificationService(store.Notifications(), publisher, zap.NewNop()), publisher
}

func TestNotifications_CreatePushesEventAndCount(t *testing.T) {
	ctx := context.Background()
	svc, publisher := newNotificationFixture()

	n, err := svc.Create(ctx, "user-1", entities.NotificationTypeInfo, "New comment", "Alice replied", "pod:p1")
	require.NoError(t, err)
	assert.False(t, n.Read)

	kinds := publisher.kinds()
	assert.Contains(t, kinds, events.KindNotificationNew)
	assert.Contains(t, kinds, events.KindNotificationUnreadCount)

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotifications_MarkRead(t *testing.T) {
	ctx := context.Background()
	svc, publisher := newNotificationFixture()

	n, err := svc.Create(ctx, "user-1", entities.NotificationTypeSuccess, "Done", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "user-1", n.ID))
	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Marking an already-read notification publishes nothing further.
	before := len(publisher.kinds())
	require.NoError(t, svc.MarkRead(ctx, "user-1", n.ID))
	assert.Equal(t, before, len(publisher.kinds()))
}

func TestNotifications_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	svc, _ := newNotificationFixture()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "user-1", entities.NotificationTypeWarning, "Heads up", "", "")
		require.NoError(t, err)
	}

	require.NoError(t, svc.MarkAllRead(ctx, "user-1"))
	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNotifications_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newNotificationFixture()

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := svc.Create(ctx, "user-1", entities.NotificationTypeInfo, "n", "", "")
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	page, err := svc.List(ctx, "user-1", ports.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Notifications, 3)
}
