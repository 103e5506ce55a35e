package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
)

func exerciseSessionStore(t *testing.T, store storage.SessionStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := &types.Session{ID: uuid.NewString(), Filename: "a.pdf", Status: types.SessionUploaded, CreatedAt: now}
	second := &types.Session{ID: uuid.NewString(), Filename: "b.txt", Status: types.SessionProcessed,
		Processed: true, CreatedAt: now.Add(time.Second)}
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, first))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.Filename)

	// 修改返回值不影响存储内容
	got.History = append(got.History, types.ConversationTurn{User: "q", Assistant: "a"})
	again, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, again.History)

	list, err := store.List(ctx)
	require.NoError(t, err)
	var ids []string
	for _, s := range list {
		if s.ID == first.ID || s.ID == second.ID {
			ids = append(ids, s.ID)
		}
	}
	assert.Equal(t, []string{first.ID, second.ID}, ids, "按创建时间排序")

	require.NoError(t, store.Delete(ctx, first.ID))
	_, err = store.Get(ctx, first.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, first.ID), storage.ErrSessionNotFound)
	require.NoError(t, store.Delete(ctx, second.ID))
}

func TestMemorySessionStore(t *testing.T) {
	exerciseSessionStore(t, storage.NewMemorySessionStore())
}

// 设置 TEST_REDIS_ADDR 后对真实 Redis 运行同一组用例
func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR 未设置, 跳过Redis集成测试")
	}
	cfg := &config.RedisConfig{Address: addr, KeyPrefix: "resume_agent_test:" + uuid.NewString() + ":", SessionTTLHours: 1}
	client, err := storage.NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	store, err := storage.NewRedisSessionStore(client, cfg)
	require.NoError(t, err)
	defer store.Close()

	exerciseSessionStore(t, store)
}
