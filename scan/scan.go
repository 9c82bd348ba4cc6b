// Package scan resolves an order number from competing sources: the
// hardware barcode wedge and the manual-entry prompt race, first answer
// wins, losers are cancelled.
package scan

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSources is returned by Race when called with nothing to race.
var ErrNoSources = errors.New("no code sources")

// Code is a resolved order number plus where it came from.
type Code struct {
	Value  string
	Source string
}

// Source produces one order code. Implementations must honor ctx
// cancellation; a cancelled source returns ctx.Err().
type Source interface {
	// Name tags codes produced by this source.
	Name() string
	// WaitForCode blocks until a code arrives or ctx is done.
	WaitForCode(ctx context.Context) (string, error)
}

// Race runs every source concurrently and returns the first code produced.
// The remaining sources are cancelled and waited out before Race returns,
// so no goroutine outlives the call.
func Race(ctx context.Context, sources ...Source) (Code, error) {
	if len(sources) == 0 {
		return Code{}, ErrNoSources
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		code Code
		err  error
	}
	results := make(chan outcome, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			v, err := src.WaitForCode(ctx)
			results <- outcome{code: Code{Value: v, Source: src.Name()}, err: err}
		}(src)
	}

	var firstErr error
	for range sources {
		o := <-results
		if o.err == nil {
			cancel()
			wg.Wait()
			return o.code, nil
		}
		if firstErr == nil && !errors.Is(o.err, context.Canceled) {
			firstErr = o.err
		}
	}
	wg.Wait()
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return Code{}, firstErr
}

// ChannelSource adapts a code channel, typically fed by an HTTP endpoint
// receiving wedge keystrokes or manual submissions.
type ChannelSource struct {
	name string
	ch   <-chan string
}

// NewChannelSource wraps ch under the given source name.
func NewChannelSource(name string, ch <-chan string) *ChannelSource {
	return &ChannelSource{name: name, ch: ch}
}

func (s *ChannelSource) Name() string { return s.name }

func (s *ChannelSource) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code, ok := <-s.ch:
		if !ok {
			return "", context.Canceled
		}
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// FuncSource adapts a blocking function as a source.
type FuncSource struct {
	name string
	fn   func(ctx context.Context) (string, error)
}

// NewFuncSource wraps fn under the given source name.
func NewFuncSource(name string, fn func(ctx context.Context) (string, error)) *FuncSource {
	return &FuncSource{name: name, fn: fn}
}

func (s *FuncSource) Name() string { return s.name }

func (s *FuncSource) WaitForCode(ctx context.Context) (string, error) {
	return s.fn(ctx)
}
