package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/libstats-api/pkg/errors"
)

type mockContactSource struct {
	emails []string
	calls  int
}

func (m *mockContactSource) ListActiveContactEmails(ctx context.Context) ([]string, error) {
	m.calls++
	return m.emails, nil
}

type mockAdminSource struct {
	emails []string
}

func (m *mockAdminSource) ListAdminEmails(ctx context.Context) ([]string, error) {
	return m.emails, nil
}

type mapCache struct {
	entries map[string][]byte
	getErr  error
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func TestRecipientServiceCachesUserList(t *testing.T) {
	libraries := &mockContactSource{emails: []string{"a@example.com", "b@example.com"}}
	cache := &mapCache{}
	svc := NewRecipientService(libraries, &mockAdminSource{}, cache, time.Minute, zap.NewNop())

	first, err := svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	second, err := svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, libraries.calls)
}

func TestRecipientServiceToleratesCacheFailure(t *testing.T) {
	libraries := &mockContactSource{emails: []string{"a@example.com"}}
	cache := &mapCache{getErr: errors.New("redis down")}
	svc := NewRecipientService(libraries, &mockAdminSource{}, cache, time.Minute, zap.NewNop())

	emails, err := svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, emails)
}

func TestRecipientServiceInvalidateDropsCachedLists(t *testing.T) {
	libraries := &mockContactSource{emails: []string{"a@example.com"}}
	cache := &mapCache{}
	svc := NewRecipientService(libraries, &mockAdminSource{}, cache, time.Minute, zap.NewNop())

	_, err := svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, libraries.calls)

	svc.Invalidate(context.Background())

	_, err = svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, libraries.calls)
}

func TestRecipientServiceWorksWithoutCache(t *testing.T) {
	libraries := &mockContactSource{emails: []string{"a@example.com"}}
	svc := NewRecipientService(libraries, &mockAdminSource{emails: []string{"admin@example.com"}}, nil, 0, zap.NewNop())

	emails, err := svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	assert.Len(t, emails, 1)

	admins, err := svc.AdminRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com"}, admins)

	// Every call hits the source when caching is disabled.
	_, err = svc.ActiveUserRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, libraries.calls)
}
