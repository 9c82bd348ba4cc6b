package scan

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRaceFirstWins(t *testing.T) {
	wedge := make(chan string, 1)
	manual := make(chan string, 1)
	wedge <- "12345678"

	code, err := Race(context.Background(),
		NewChannelSource("wedge", wedge),
		NewChannelSource("manual", manual),
	)
	if err != nil {
		t.Fatal(err)
	}
	if code.Value != "12345678" || code.Source != "wedge" {
		t.Fatalf("got %+v", code)
	}
}

func TestRaceCancelsLosers(t *testing.T) {
	cancelled := make(chan struct{})
	slow := NewFuncSource("manual", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})
	fast := NewFuncSource("wedge", func(ctx context.Context) (string, error) {
		return "87654321", nil
	})

	code, err := Race(context.Background(), slow, fast)
	if err != nil {
		t.Fatal(err)
	}
	if code.Source != "wedge" {
		t.Fatalf("got %+v", code)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("losing source was not cancelled")
	}
}

func TestRaceContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Race(ctx, NewChannelSource("wedge", make(chan string)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRaceSourceError(t *testing.T) {
	boom := errors.New("scanner unplugged")
	bad := NewFuncSource("wedge", func(ctx context.Context) (string, error) {
		return "", boom
	})
	ok := NewFuncSource("manual", func(ctx context.Context) (string, error) {
		return "11112222", nil
	})
	code, err := Race(context.Background(), bad, ok)
	if err != nil {
		t.Fatal(err)
	}
	if code.Value != "11112222" {
		t.Fatalf("got %+v", code)
	}
}

func TestRaceNoSources(t *testing.T) {
	if _, err := Race(context.Background()); !errors.Is(err, ErrNoSources) {
		t.Fatalf("err = %v", err)
	}
}
