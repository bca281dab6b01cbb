package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecuteRunsHooksInRegistrationOrder(t *testing.T) {
	var order []string

	hooks := &ShutdownHooks{}
	hooks.Add("first", func() error {
		order = append(order, "first")
		return nil
	})
	hooks.Add("second", func() error {
		order = append(order, "second")
		return nil
	})

	hooks.Execute(context.Background())

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestExecuteContinuesPastFailingHooks(t *testing.T) {
	var order []string

	hooks := &ShutdownHooks{}
	hooks.Add("failing", func() error {
		order = append(order, "failing")
		return errors.New("cleanup failed")
	})
	hooks.Add("surviving", func() error {
		order = append(order, "surviving")
		return nil
	})

	hooks.Execute(context.Background())

	assert.Equal(t, []string{"failing", "surviving"}, order)
}

func TestNilHooksAreIgnored(t *testing.T) {
	hooks := &ShutdownHooks{}
	hooks.Add("nil", nil)
	hooks.AddContext("nil context", nil)

	assert.NotPanics(t, func() {
		hooks.Execute(context.Background())
	})
	assert.Empty(t, hooks.hooks)
}

func TestAddContextReceivesTheShutdownContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	var got any
	hooks := &ShutdownHooks{}
	hooks.AddContext("inspect", func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})

	hooks.Execute(ctx)

	assert.Equal(t, "value", got)
}
