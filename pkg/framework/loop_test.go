package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsByPriority(t *testing.T) {
	var order []string
	l := NewLoopWith("test", time.Hour)
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		order = append(order, "control")
		require.Equal(t, PrLvControl, cc.PriorityLevel())
		return errors.New("logged only")
	}))
	l.AddController(PrLvIO, ControlFunc(func(cc ControlContext) error {
		order = append(order, "io")
		return nil
	}))
	l.RunIteration(context.Background())
	l.RunIteration(context.Background())
	require.Equal(t, []string{"io", "control", "io", "control"}, order)
}

func TestLoopIterationSequence(t *testing.T) {
	var seqs []uint64
	l := NewLoopWith("seq", time.Hour)
	l.AddController(PrLvTop, ControlFunc(func(cc ControlContext) error {
		seqs = append(seqs, cc.Iteration())
		return nil
	}))
	for i := 0; i < 3; i++ {
		l.RunIteration(context.Background())
	}
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestLoopTriggerNext(t *testing.T) {
	ranCh := make(chan struct{}, 4)
	l := NewLoopWith("trigger", time.Hour)
	l.AddController(PrLvTop, ControlFunc(func(cc ControlContext) error {
		ranCh <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.Equal(t, context.Canceled, l.Run(ctx))
	}()

	l.TriggerNext()
	select {
	case <-ranCh:
	case <-time.After(time.Second):
		t.Fatal("triggered iteration timeout")
	}
	cancel()
	wg.Wait()
}

func TestLoopTicks(t *testing.T) {
	ranCh := make(chan struct{}, 16)
	l := NewLoopWith("tick", time.Millisecond)
	started := make(chan struct{})
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	l.AddController(PrLvTop, ControlFunc(func(cc ControlContext) error {
		select {
		case ranCh <- struct{}{}:
		default:
		}
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	<-started
	for i := 0; i < 3; i++ {
		select {
		case <-ranCh:
		case <-time.After(time.Second):
			t.Fatal("tick timeout")
		}
	}
	cancel()
	require.Equal(t, context.Canceled, <-done)
}
