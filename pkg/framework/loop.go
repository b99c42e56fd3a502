package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the iteration interval when Loop.Interval is not set.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers periodically, ordered by priority levels.
type Loop struct {
	Name     string
	Interval time.Duration

	controllers [PriorityLevels]controllerList
	runners     []Runnable

	iteration uint64
	wakeUpCh  chan struct{}
	initOnce  sync.Once
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	loop          *Loop
	ctx           context.Context
	time          time.Time
	seq           uint64
	priorityLevel int
}

type controllerList struct {
	controllers []Controller
	lock        sync.Mutex
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// NewLoopWith creates a named Loop with the interval.
func NewLoopWith(name string, interval time.Duration) *Loop {
	return &Loop{Name: name, Interval: interval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lst := &l.controllers[priorityLevel]
	lst.lock.Lock()
	lst.controllers = append(lst.controllers, ctls...)
	lst.lock.Unlock()
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()

	var runner *Runner
	if len(l.runners) > 0 {
		runner = NewRunnerWith(ctx)
		runner.Go(l.runners...)
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if runner != nil {
				if err := runner.Wait(); err != nil {
					glog.Errorf("loop %s: %v", l.Name, err)
				}
			}
			return ctx.Err()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUpCh:
			l.RunIteration(ctx)
		}
	}
}

// String implements fmt.Stringer.
func (l *Loop) String() string {
	return l.Name
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunIteration runs all controllers once. It's exposed for
// driving a loop step by step.
func (l *Loop) RunIteration(ctx context.Context) {
	l.iteration++
	iter := &loopIteration{loop: l, ctx: ctx, time: time.Now(), seq: l.iteration}
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		l.controllers[i].run(iter)
	}
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Iteration() uint64 {
	return t.seq
}

func (t *loopIteration) TriggerNext() {
	t.loop.TriggerNext()
}

func (c *controllerList) run(iter *loopIteration) {
	c.lock.Lock()
	ctls := c.controllers
	c.lock.Unlock()
	for _, ctl := range ctls {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("loop %s: controller error: %v", iter.loop.Name, err)
		}
	}
}
