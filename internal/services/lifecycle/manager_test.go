package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	m := New(0, nil)
	var order []string
	for _, name := range []string{"database", "redis", "http_server"} {
		name := name
		m.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	m.Register("ignored", nil)

	assert.Equal(t, []string{"http_server", "redis", "database"}, m.Components())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"http_server", "redis", "database"}, order)

	// hooks run once
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownJoinsErrors(t *testing.T) {
	m := New(0, nil)
	errBoom := errors.New("boom")
	ran := false
	m.Register("first", func(context.Context) error {
		ran = true
		return nil
	})
	m.Register("failing", func(context.Context) error { return errBoom })

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "failing")
	assert.True(t, ran)
}

func TestRegisterReplacesByName(t *testing.T) {
	m := New(0, nil)
	calls := 0
	m.Register("relay", func(context.Context) error { return errors.New("old") })
	m.Register("relay", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Empty(t, m.Components())
}
