package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryScheduler_SingleFlight(t *testing.T) {
	r := newRetryScheduler()
	defer r.Stop()

	fired := make(chan struct{}, 2)
	require.True(t, r.Arm(10*time.Millisecond, func() { fired <- struct{}{} }))
	assert.False(t, r.Arm(10*time.Millisecond, func() { fired <- struct{}{} }), "second arm while pending is suppressed")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("armed retry never fired")
	}

	select {
	case <-fired:
		t.Fatal("suppressed retry fired anyway")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRetryScheduler_RearmsAfterFire(t *testing.T) {
	r := newRetryScheduler()
	defer r.Stop()

	fired := make(chan struct{}, 1)
	require.True(t, r.Arm(5*time.Millisecond, func() {}))

	require.Eventually(t, func() bool { return !r.Pending() }, time.Second, time.Millisecond)

	require.True(t, r.Arm(5*time.Millisecond, func() { fired <- struct{}{} }))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("re-armed retry never fired")
	}
}

func TestRetryScheduler_CallbackCanRearm(t *testing.T) {
	r := newRetryScheduler()
	defer r.Stop()

	second := make(chan struct{}, 1)
	// The flag clears before the callback runs, so a nested failure can
	// schedule the next attempt from inside the callback.
	require.True(t, r.Arm(5*time.Millisecond, func() {
		if !r.Arm(5*time.Millisecond, func() { second <- struct{}{} }) {
			t.Error("callback could not re-arm")
		}
	}))

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("nested retry never fired")
	}
}

func TestRetryScheduler_StopCancelsPending(t *testing.T) {
	r := newRetryScheduler()

	fired := make(chan struct{}, 1)
	require.True(t, r.Arm(20*time.Millisecond, func() { fired <- struct{}{} }))
	r.Stop()
	assert.False(t, r.Pending())

	select {
	case <-fired:
		t.Fatal("stopped retry fired")
	case <-time.After(60 * time.Millisecond):
	}
}
