package shared

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-erp/meridian-erp/testing"
)

func newCachedSettings(t *testing.T) (*Settings, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewSettings(nil, client, nil), mr
}

func TestSettingsGetServesFromCache(t *testing.T) {
	settings, mr := newCachedSettings(t)
	require.NoError(t, mr.Set(settingsCacheKey("inventory", "adjustment_require_approval"), "false"))

	value, err := settings.Get(context.Background(), "inventory", "adjustment_require_approval", "true")
	require.NoError(t, err)
	assert.Equal(t, "false", value)
}

func TestSettingsGetRequiresGroupAndKey(t *testing.T) {
	settings, _ := newCachedSettings(t)

	value, err := settings.Get(context.Background(), "", "adjustment_require_approval", "true")
	assert.Error(t, err)
	assert.Equal(t, "true", value)
}

func TestSettingsGetCacheMissWithoutDatabaseFails(t *testing.T) {
	settings, _ := newCachedSettings(t)

	value, err := settings.Get(context.Background(), "inventory", "missing", "fallback")
	assert.Error(t, err)
	assert.Equal(t, "fallback", value)
}

type settingsStub struct {
	values map[string]string
	err    error
}

func (s settingsStub) Get(_ context.Context, group, key, def string) (string, error) {
	if s.err != nil {
		return def, s.err
	}
	if v, ok := s.values[group+"/"+key]; ok {
		return v, nil
	}
	return def, nil
}

func TestGetBool(t *testing.T) {
	ctx := context.Background()

	stub := settingsStub{values: map[string]string{"inventory/adjustment_require_approval": "false"}}
	assert.False(t, GetBool(ctx, stub, "inventory", "adjustment_require_approval", true))

	assert.True(t, GetBool(ctx, settingsStub{}, "inventory", "adjustment_require_approval", true))

	garbled := settingsStub{values: map[string]string{"inventory/adjustment_require_approval": "yes please"}}
	assert.True(t, GetBool(ctx, garbled, "inventory", "adjustment_require_approval", true))

	failing := settingsStub{err: errors.New("backend down")}
	assert.True(t, GetBool(ctx, failing, "inventory", "adjustment_require_approval", true))
}

func TestGetDecimal(t *testing.T) {
	ctx := context.Background()

	stub := settingsStub{values: map[string]string{"inventory/adjustment_auto_approve_threshold": "12.5"}}
	got := GetDecimal(ctx, stub, "inventory", "adjustment_auto_approve_threshold", decimal.Zero)
	assert.True(t, got.Equal(decimal.RequireFromString("12.5")))

	got = GetDecimal(ctx, settingsStub{}, "inventory", "adjustment_auto_approve_threshold", decimal.NewFromInt(3))
	assert.True(t, got.Equal(decimal.NewFromInt(3)))

	garbled := settingsStub{values: map[string]string{"inventory/adjustment_auto_approve_threshold": "lots"}}
	got = GetDecimal(ctx, garbled, "inventory", "adjustment_auto_approve_threshold", decimal.Zero)
	assert.True(t, got.IsZero())
}
