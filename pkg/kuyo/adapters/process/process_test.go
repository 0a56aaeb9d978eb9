package process

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/kuyotest"
)

func TestGuard_CapturesFlushesAndRepanics(t *testing.T) {
	c := kuyotest.NewCapturer(kuyo.Config{})
	a := New(c)

	assert.PanicsWithValue(t, "boom", func() {
		defer a.Guard()
		panic("boom")
	})

	errs := c.Errors()
	require.Len(t, errs, 1)
	var pe *kuyo.PanicError
	require.True(t, errors.As(errs[0], &pe))
	assert.Equal(t, "boom", pe.Value)
	assert.Contains(t, pe.Stack(), "goroutine")

	extra := c.ErrorExtras()[0]
	assert.Equal(t, "panic", extra["source"])
	assert.Equal(t, true, extra["fatal"])
	assert.Equal(t, Name, extra["adapter"])
	assert.Equal(t, 1, c.Flushes())
}

func TestGuard_NoPanic(t *testing.T) {
	c := kuyotest.NewCapturer(kuyo.Config{})
	a := New(c)

	func() {
		defer a.Guard()
	}()

	assert.Empty(t, c.Errors())
	assert.Zero(t, c.Flushes())
}

func TestGo_CapturesReturnedError(t *testing.T) {
	c := kuyotest.NewCapturer(kuyo.Config{})
	a := New(c)
	want := errors.New("rejected")

	a.Go(func() error { return want })

	require.Eventually(t, func() bool { return len(c.Errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Same(t, want, c.Errors()[0])
	assert.Equal(t, "goroutine", c.ErrorExtras()[0]["source"])
}

func TestGo_NilErrorNotCaptured(t *testing.T) {
	c := kuyotest.NewCapturer(kuyo.Config{})
	a := New(c)
	done := make(chan struct{})

	a.Go(func() error {
		defer close(done)
		return nil
	})

	<-done
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, c.Errors())
}

func TestTeardown_WithoutSetup(t *testing.T) {
	a := New(kuyotest.NewCapturer(kuyo.Config{}))
	assert.NotPanics(t, a.Teardown)
	assert.NotPanics(t, a.Teardown)
}

func TestSetupTeardown_Repeatable(t *testing.T) {
	a := New(kuyotest.NewCapturer(kuyo.Config{}))
	for i := 0; i < 3; i++ {
		a.Setup()
		a.Setup()
		a.Teardown()
	}
	assert.Nil(t, a.sigCh)
}

func TestContext(t *testing.T) {
	a := New(kuyotest.NewCapturer(kuyo.Config{}))
	ctx := a.Context()
	assert.Contains(t, ctx, "runtime")
	assert.Contains(t, ctx, "go")
}
