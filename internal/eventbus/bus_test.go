package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		bus.On(RegistrationRequested, func(ctx context.Context, payload any) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	bus.Emit(context.Background(), RegistrationRequested, nil)
	bus.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBusHandlerErrorDoesNotSuppressLaterHandlers(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var errs []error
	bus.OnError(func(event Event, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	ran := false
	bus.On(DownloadLinkApproved, func(ctx context.Context, payload any) error {
		return errors.New("smtp unreachable")
	})
	bus.On(DownloadLinkApproved, func(ctx context.Context, payload any) error {
		ran = true
		return nil
	})

	bus.Emit(context.Background(), DownloadLinkApproved, nil)
	bus.Wait()

	assert.True(t, ran)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "smtp unreachable")
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var errs []error
	bus.OnError(func(event Event, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	ran := false
	bus.On(RegistrationRejected, func(ctx context.Context, payload any) error {
		panic("template missing")
	})
	bus.On(RegistrationRejected, func(ctx context.Context, payload any) error {
		ran = true
		return nil
	})

	bus.Emit(context.Background(), RegistrationRejected, nil)
	bus.Wait()

	assert.True(t, ran)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "handler panic")
}

func TestBusDeliversPayloadToSubscribedEventOnly(t *testing.T) {
	bus := New()
	defer bus.Close()

	var got any
	bus.On(DownloadLinkRequested, func(ctx context.Context, payload any) error {
		got = payload
		return nil
	})

	want := DownloadLinkRequestedPayload{RequestID: 7, Username: "reader@example.com", PublicationID: 3}
	bus.Emit(context.Background(), DownloadLinkRequested, want)
	bus.Emit(context.Background(), RegistrationRequested, RegistrationRequestedPayload{Username: "other"})
	bus.Wait()

	assert.Equal(t, want, got)
}

func TestBusEmitAfterCloseIsNoop(t *testing.T) {
	bus := New()

	delivered := false
	bus.On(RegistrationApproved, func(ctx context.Context, payload any) error {
		delivered = true
		return nil
	})

	bus.Close()
	bus.Emit(context.Background(), RegistrationApproved, nil)
	bus.Close() // idempotent

	assert.False(t, delivered)
}

func TestBusCloseDuringConcurrentEmits(t *testing.T) {
	bus := New()

	var delivered atomic.Int64
	bus.On(RegistrationRequested, func(ctx context.Context, payload any) error {
		delivered.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				bus.Emit(context.Background(), RegistrationRequested, i)
			}
		}()
	}

	// closing while emitters are still running must never panic
	bus.Close()
	wg.Wait()

	after := delivered.Load()
	bus.Emit(context.Background(), RegistrationRequested, nil)
	assert.Equal(t, after, delivered.Load())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "request.registration", RegistrationRequested.String())
	assert.Equal(t, "request.registration.approved", RegistrationApproved.String())
	assert.Equal(t, "request.registration.rejected", RegistrationRejected.String())
	assert.Equal(t, "request.downloadLink", DownloadLinkRequested.String())
	assert.Equal(t, "request.downloadLink.approved", DownloadLinkApproved.String())
	assert.Equal(t, "request.downloadLink.rejected", DownloadLinkRejected.String())
	assert.Equal(t, "user.password.forgot", PasswordResetRequested.String())
	assert.Equal(t, "user.password.reset", PasswordResetCompleted.String())
}
