// Package threadloop implements the thread-hosted event loop of
// spec.md §4.2: a private dispatch loop owned by a dedicated worker
// goroutine, with a lock/cond rendezvous protocol so other goroutines
// can safely post work and synchronously wait for the worker to
// acknowledge it. Grounded directly on
// _examples/original_source/pinos/client/thread-mainloop.c — field
// shapes, the signal/wait asymmetry, and the lock-around-poll sequence
// all mirror that file (see DESIGN.md for the line-level mapping).
package threadloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/internal/logging"
	"github.com/audiograph/convnode/internal/metrics"
)

// AffinityError is panicked when a thread-affinity rule is violated:
// calling Lock, Stop, Wait, or Accept from inside the worker goroutine,
// or calling Signal from outside it. Spec.md §7 frames these as
// "programming errors... not recoverable", matching the teacher's own
// convention of panicking on programmer-error preconditions rather than
// returning an error a caller might swallow.
type AffinityError struct {
	Op string
}

func (e AffinityError) Error() string {
	return "threadloop: " + e.Op + " called from the wrong goroutine"
}

// ThreadLoop owns a worker goroutine running a private dispatch loop.
type ThreadLoop struct {
	name string
	poll PollSource

	mu         sync.Mutex
	cond       *sync.Cond // condition A: "signalled"
	acceptCond *sync.Cond // condition B: "accepted"

	nWaiting          int
	nWaitingForAccept int

	started bool
	workerG atomic.Uint64

	workQueue chan func()
	quit      chan struct{}
	done      chan struct{}

	logger   *slog.Logger
	recorder metrics.Recorder
}

// New constructs a ThreadLoop. poll is the loop context (nil selects a
// fresh ChannelPoll, "create a default" per spec.md §4.2 new()). name
// is used only to label the worker goroutine in logs.
func New(name string, poll PollSource) *ThreadLoop {
	if poll == nil {
		poll = NewChannelPoll()
	}
	logger := logging.ForService("threadloop")
	if logger == nil {
		logger = slog.Default()
	}
	tl := &ThreadLoop{
		name:      name,
		poll:      poll,
		workQueue: make(chan func(), 64),
		logger:    logger.With("loop", name),
		recorder:  metrics.NoOp{},
	}
	tl.cond = sync.NewCond(&tl.mu)
	tl.acceptCond = sync.NewCond(&tl.mu)
	return tl
}

// SetRecorder attaches a metrics.Recorder; nil resets to a no-op.
func (tl *ThreadLoop) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoOp{}
	}
	tl.mu.Lock()
	tl.recorder = r
	tl.mu.Unlock()
}

// Start spawns the worker goroutine. It returns once the goroutine
// exists, not once it has entered the dispatch loop (spec.md §4.2).
func (tl *ThreadLoop) Start() error {
	tl.mu.Lock()
	if tl.started {
		tl.mu.Unlock()
		return errors.New(nil).
			Component("threadloop").
			Category(errors.CategoryState).
			Context("loop", tl.name).
			Context("reason", "already started").
			Build()
	}
	tl.started = true
	tl.quit = make(chan struct{})
	tl.done = make(chan struct{})
	tl.mu.Unlock()

	spawned := make(chan struct{})
	go tl.run(spawned)
	<-spawned
	return nil
}

// Stop requests the loop quit and joins the worker. It must not be
// called from inside the worker (would deadlock waiting for itself).
func (tl *ThreadLoop) Stop() {
	if tl.InThread() {
		panic(AffinityError{Op: "Stop"})
	}
	tl.mu.Lock()
	if !tl.started {
		tl.mu.Unlock()
		return
	}
	quit := tl.quit
	done := tl.done
	tl.mu.Unlock()

	close(quit)
	if w, ok := tl.poll.(Waker); ok {
		w.Wakeup()
	}
	<-done

	tl.mu.Lock()
	tl.started = false
	tl.mu.Unlock()
}

// Lock acquires the loop's mutex from an external goroutine. Forbidden
// from inside the worker, which already holds it except during poll.
func (tl *ThreadLoop) Lock() {
	if tl.InThread() {
		panic(AffinityError{Op: "Lock"})
	}
	tl.mu.Lock()
}

// Unlock releases the loop's mutex.
func (tl *ThreadLoop) Unlock() {
	tl.mu.Unlock()
}

// WithLock runs fn with the loop locked, matching spec.md §5's
// documented composition point for every mutating convnode call. It
// must be called from an external goroutine, same as Lock.
func WithLock(tl *ThreadLoop, fn func() error) error {
	tl.Lock()
	defer tl.Unlock()
	return fn()
}

// Schedule queues fn to run on the worker goroutine and wakes the loop
// if it is blocked in poll. Combined with Wait/Signal/Accept this forms
// the rendezvous protocol of spec.md §4.2: "App thread: lock(); schedule
// work that will call signal(true); wait(); ...read result...; accept();
// unlock()". Must be called with the lock held (typically via WithLock).
func (tl *ThreadLoop) Schedule(fn func()) {
	tl.workQueue <- fn
	if w, ok := tl.poll.(Waker); ok {
		w.Wakeup()
	}
}

// Signal is called from the worker thread with the lock held. If
// goroutines are blocked in Wait, it broadcasts condition A. If
// waitForAccept, it blocks inside Signal until Accept is called exactly
// once per caller — thread-mainloop.c's signal() loops on
// n_waiting_for_accept rather than waiting once, because a second
// external thread's Wait/Accept pair could otherwise race and consume
// the wrong wakeup; Wait, by contrast, never loops (see Wait below).
// This asymmetry is preserved verbatim from the original.
func (tl *ThreadLoop) Signal(waitForAccept bool) {
	if !tl.InThread() {
		panic(AffinityError{Op: "Signal"})
	}
	if tl.nWaiting > 0 {
		tl.cond.Broadcast()
	}
	if waitForAccept {
		tl.nWaitingForAccept++
		for tl.nWaitingForAccept > 0 {
			tl.acceptCond.Wait()
		}
	}
}

// Wait is called from an external goroutine with the lock held. It
// blocks on condition A exactly once — not in a loop — per
// thread-mainloop.c's pinos_thread_main_loop_wait, which performs one
// g_cond_wait and relies on the caller to re-check its own predicate if
// it cares about spurious/unrelated signals.
func (tl *ThreadLoop) Wait() {
	if tl.InThread() {
		panic(AffinityError{Op: "Wait"})
	}
	tl.nWaiting++
	tl.cond.Wait()
	tl.nWaiting--
}

// Accept is called from an external goroutine with the lock held. It
// decrements n_waiting_for_accept and signals condition B, releasing
// one Signal(true) call blocked on the worker.
func (tl *ThreadLoop) Accept() {
	if tl.InThread() {
		panic(AffinityError{Op: "Accept"})
	}
	if tl.nWaitingForAccept <= 0 {
		return
	}
	tl.nWaitingForAccept--
	tl.acceptCond.Signal()
}

// InThread reports whether the calling goroutine is the worker.
func (tl *ThreadLoop) InThread() bool {
	id := tl.workerG.Load()
	return id != 0 && id == goroutineID()
}

// run is the worker goroutine's body: the lock-around-poll trick of
// spec.md §4.2. The worker holds the lock while dispatching queued work
// (so handlers observe a stable view) and releases it only for the
// duration of the blocking poll call.
func (tl *ThreadLoop) run(spawned chan struct{}) {
	tl.workerG.Store(goroutineID())
	close(spawned)

	tl.mu.Lock()
	defer func() {
		tl.mu.Unlock()
		close(tl.done)
	}()

	pollCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-tl.quit
		cancel()
	}()

	for {
		tl.dispatchPending()

		select {
		case <-tl.quit:
			return
		default:
		}

		start := time.Now()
		err := tl.doPoll(pollCtx)
		tl.recorder.RecordDuration("poll", time.Since(start))
		if err != nil {
			select {
			case <-tl.quit:
				return
			default:
				tl.logger.Debug("poll returned", "error", err)
			}
		}
	}
}

// dispatchPending drains the work queue while the lock is held.
func (tl *ThreadLoop) dispatchPending() {
	for {
		select {
		case fn := <-tl.workQueue:
			fn()
		default:
			return
		}
	}
}

// doPoll implements the poll override exactly: release the lock,
// invoke the real poll (blocking), reacquire the lock, return its
// result — regardless of whether it errored, mirroring
// handle_mainloop's unconditional g_mutex_lock after poll() returns.
func (tl *ThreadLoop) doPoll(ctx context.Context) error {
	tl.mu.Unlock()
	err := tl.poll.Poll(ctx)
	tl.mu.Lock()
	return err
}
