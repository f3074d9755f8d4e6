package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/musewave/maestro/ext"
	"github.com/musewave/maestro/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobEnqueued  = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobProgress  = (*Broker)(nil)
	_ ext.JobCompleted = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.JobCancelled = (*Broker)(nil)
	_ ext.JobDLQ       = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// DefaultTerminalGrace is how long a job topic survives after its
// terminal event before being torn down.
const DefaultTerminalGrace = 5 * time.Second

// Broker is the real-time progress broker. It implements the
// ext.Extension hooks to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Pending topic teardowns, cancelled on shutdown.
	timers sync.Map // topic → *time.Timer

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
	terminalGrace  time.Duration
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithTerminalGrace sets how long subscribers get to drain a job topic
// after its terminal event before the topic is torn down.
func WithTerminalGrace(d time.Duration) BrokerOption {
	return func(b *Broker) { b.terminalGrace = d }
}

// NewBroker creates a new progress broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
		terminalGrace:  DefaultTerminalGrace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "progress-broker" }

// Topics returns the topic registry for external use (e.g., WSP server).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics. No events are
// delivered for those topics afterwards.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topicCount"`
	SubscriberCount int   `json:"subscriberCount"`
	TotalPublished  int64 `json:"totalPublished"`
}

// publish broadcasts an event to all matching topics. Terminal events
// schedule teardown of the job topic after the grace period.
func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))

	if evt.Type.Terminal() && evt.Topic != "" {
		b.scheduleTeardown(evt.Topic)
	}
}

// scheduleTeardown closes a job topic after the grace period, closing
// any subscriber that was only on that topic.
func (b *Broker) scheduleTeardown(topic string) {
	timer := time.AfterFunc(b.terminalGrace, func() {
		b.timers.Delete(topic)
		for _, sub := range b.topics.Close(topic) {
			b.subscribers.Delete(sub.ID())
			sub.Close()
		}
	})
	if prev, loaded := b.timers.Swap(topic, timer); loaded {
		prev.(*time.Timer).Stop() //nolint:errcheck // timers map always stores *time.Timer
	}
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventJobEnqueued,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:   j.ID.String(),
			JobType: j.Type,
		}),
	})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventJobStarted,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:   j.ID.String(),
			JobType: j.Type,
			Attempt: j.Attempts,
		}),
	})
	return nil
}

func (b *Broker) OnJobProgress(_ context.Context, j *job.Job, pct float64, stage string) error {
	b.publish(&Event{
		Type:      EventJobProgress,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:    j.ID.String(),
			JobType:  j.Type,
			Progress: pct,
			Stage:    stage,
		}),
	})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publish(&Event{
		Type:      EventJobCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:     j.ID.String(),
			JobType:   j.Type,
			Success:   true,
			Result:    j.Result,
			ElapsedMs: elapsed.Milliseconds(),
		}),
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.publish(&Event{
		Type:      EventJobFailed,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:   j.ID.String(),
			JobType: j.Type,
			Error:   jobErr.Error(),
		}),
	})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, availableAt time.Time) error {
	b.publish(&Event{
		Type:      EventJobRetrying,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:       j.ID.String(),
			JobType:     j.Type,
			Attempt:     attempt,
			AvailableAt: availableAt.Format(time.RFC3339),
		}),
	})
	return nil
}

func (b *Broker) OnJobCancelled(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventJobCancelled,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:   j.ID.String(),
			JobType: j.Type,
		}),
	})
	return nil
}

func (b *Broker) OnJobDLQ(_ context.Context, j *job.Job, jobErr error) error {
	b.publish(&Event{
		Type:      EventJobDLQ,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:   j.ID.String(),
			JobType: j.Type,
			Error:   jobErr.Error(),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.timers.Range(func(key, value any) bool {
		value.(*time.Timer).Stop() //nolint:errcheck // timers map always stores *time.Timer
		b.timers.Delete(key)
		return true
	})
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("progress broker shut down")
	return nil
}
