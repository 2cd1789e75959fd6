package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"factotum/pkg/factotum"
)

// EventBus is the kernel asynchronous pub/sub implementation.
//
// Each subscriber owns a bounded queue and a worker pool; publish fans out to
// matching subscribers without waiting for handler completion.
type EventBus struct {
	mu                    sync.RWMutex
	nextID                int64
	closed                bool
	subscribers           map[int64]*subscriber
	defaultBuffer         int
	defaultWorkers        int
	defaultHandlerTimeout time.Duration
	onAsyncError          func(context.Context, string, error)
}

// NewEventBus creates an asynchronous event bus with bounded queues.
func NewEventBus(
	defaultBuffer int,
	defaultWorkers int,
	defaultHandlerTimeout time.Duration,
	onAsyncError func(context.Context, string, error),
) *EventBus {
	return &EventBus{
		subscribers:           make(map[int64]*subscriber),
		defaultBuffer:         defaultBuffer,
		defaultWorkers:        defaultWorkers,
		defaultHandlerTimeout: defaultHandlerTimeout,
		onAsyncError:          onAsyncError,
	}
}

// Publish dispatches an event to all subscribers whose interest matches.
//
// Drops and closed-subscriber rejections are reported to the async error sink
// instead of failing the publish; the producer must not stall on slow modules.
func (b *EventBus) Publish(ctx context.Context, event *factotum.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	targets, err := b.snapshot()
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	var publishErrs []error
	for _, target := range targets {
		if !target.interest.Matches(event) {
			continue
		}
		if err := target.enqueue(ctx, event); err != nil {
			if errors.Is(err, factotum.ErrEventDropped) || errors.Is(err, factotum.ErrSubscriptionClosed) {
				b.reportAsyncError(ctx, target.spec.Name, err)
				continue
			}
			publishErrs = append(publishErrs, err)
		}
	}

	if len(publishErrs) > 0 {
		return fmt.Errorf("publish event %s: %w", event.Kind, errors.Join(publishErrs...))
	}

	return nil
}

// Subscribe registers a bounded asynchronous consumer.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest factotum.InterestSet,
	spec factotum.SubscriptionSpec,
	handler factotum.EventHandler,
) (factotum.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	subID := atomic.AddInt64(&b.nextID, 1)
	spec = b.normalizeSpec(spec, subID)
	sub := newSubscriber(subID, interest, spec, handler, b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.signalClose()
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}
	b.subscribers[subID] = sub

	return sub, nil
}

// Close stops all subscribers and rejects further publishes and subscribes.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		targets = append(targets, sub)
	}
	b.subscribers = make(map[int64]*subscriber)
	b.mu.Unlock()

	var closeErrs []error
	for _, sub := range targets {
		if err := sub.shutdown(ctx); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}

	if len(closeErrs) > 0 {
		return fmt.Errorf("close event bus: %w", errors.Join(closeErrs...))
	}

	return nil
}

// snapshot returns a stable subscriber copy for lock-free publish fan-out.
func (b *EventBus) snapshot() ([]*subscriber, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}

	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		targets = append(targets, sub)
	}

	return targets, nil
}

// normalizeSpec applies runtime defaults when callers omit optional fields.
func (b *EventBus) normalizeSpec(spec factotum.SubscriptionSpec, subID int64) factotum.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", subID)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaultBuffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaultWorkers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaultHandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = factotum.BackpressureDropNewest
	}

	return spec
}

// unsubscribe removes and shuts down a subscriber by id.
func (b *EventBus) unsubscribe(ctx context.Context, subID int64) error {
	b.mu.Lock()
	sub, found := b.subscribers[subID]
	if found {
		delete(b.subscribers, subID)
	}
	b.mu.Unlock()

	if !found {
		return nil
	}

	if err := sub.shutdown(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.spec.Name, err)
	}

	return nil
}

// reportAsyncError forwards background worker failures to the configured sink.
func (b *EventBus) reportAsyncError(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

// subscriber owns queueing and worker lifecycle for a single consumer.
// Queue closure is driven by context cancellation rather than channel close.
type subscriber struct {
	id       int64
	interest factotum.InterestSet
	spec     factotum.SubscriptionSpec
	handler  factotum.EventHandler
	queue    chan *factotum.Event
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closed   atomic.Bool
	once     sync.Once
	bus      *EventBus
}

func newSubscriber(
	subID int64,
	interest factotum.InterestSet,
	spec factotum.SubscriptionSpec,
	handler factotum.EventHandler,
	bus *EventBus,
) *subscriber {
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:       subID,
		interest: cloneInterestSet(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *factotum.Event, spec.Buffer),
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		bus:      bus,
	}

	sub.startWorkers()

	return sub
}

// cloneInterestSet copies owned slices so caller mutation does not affect matching.
func cloneInterestSet(interest factotum.InterestSet) factotum.InterestSet {
	cloned := interest
	if len(interest.Kinds) > 0 {
		cloned.Kinds = append([]factotum.EventKind(nil), interest.Kinds...)
	}
	if len(interest.CommandNames) > 0 {
		cloned.CommandNames = append([]string(nil), interest.CommandNames...)
	}

	return cloned
}

// Name returns the stable subscription name.
func (s *subscriber) Name() string {
	return s.spec.Name
}

// Close unregisters this subscription from its parent bus.
func (s *subscriber) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

// enqueue applies the configured backpressure policy for the subscriber queue.
func (s *subscriber) enqueue(ctx context.Context, event *factotum.Event) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, factotum.ErrSubscriptionClosed)
	}

	switch s.spec.Backpressure {
	case factotum.BackpressureDropNewest:
		return s.enqueueDropNewest(event)
	case factotum.BackpressureDropOldest:
		return s.enqueueDropOldest(event)
	case factotum.BackpressureBlock:
		return s.enqueueBlock(ctx, event)
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, factotum.ErrInvalidSubscription)
	}
}

func (s *subscriber) enqueueDropNewest(event *factotum.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, factotum.ErrEventDropped)
	}
}

// enqueueDropOldest evicts one queued event before enqueueing the new event.
func (s *subscriber) enqueueDropOldest(event *factotum.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
	}

	select {
	case <-s.queue:
	default:
	}

	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, factotum.ErrEventDropped)
	}
}

// enqueueBlock waits for queue capacity or caller context cancellation.
func (s *subscriber) enqueueBlock(ctx context.Context, event *factotum.Event) error {
	select {
	case s.queue <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
	}
}

// startWorkers launches worker goroutines and closes done after all workers exit.
func (s *subscriber) startWorkers() {
	workerWG := &sync.WaitGroup{}
	for idx := 0; idx < s.spec.Workers; idx++ {
		workerID := idx
		workerWG.Add(1)
		go s.runWorker(workerWG, workerID)
	}

	go func() {
		workerWG.Wait()
		close(s.done)
	}()
}

// runWorker drains the queue until subscription context cancellation.
// Every handler failure is routed to the async error sink.
func (s *subscriber) runWorker(workerWG *sync.WaitGroup, workerID int) {
	defer workerWG.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handleEvent(s.ctx, workerID, event); err != nil {
				s.bus.reportAsyncError(s.ctx, s.spec.Name, err)
			}
		}
	}
}

// handleEvent executes one handler call with optional timeout and panic recovery.
func (s *subscriber) handleEvent(ctx context.Context, workerID int, event *factotum.Event) error {
	handlerCtx := ctx
	cancel := func() {}
	if s.spec.HandlerTimeout > 0 {
		handlerCtxWithTimeout, handlerCancel := context.WithTimeout(ctx, s.spec.HandlerTimeout)
		handlerCtx = handlerCtxWithTimeout
		cancel = handlerCancel
	}
	defer cancel()

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, workerID)
	if err := runSafely(scope, func() error {
		return s.handler(handlerCtx, event)
	}); err != nil {
		return fmt.Errorf("%s handle event %s: %w", scope, event.Kind, err)
	}

	return nil
}

// signalClose marks the subscriber closed exactly once and cancels workers.
func (s *subscriber) signalClose() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// shutdown waits for worker exit or returns when the supplied context expires.
func (s *subscriber) shutdown(ctx context.Context) error {
	s.signalClose()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
