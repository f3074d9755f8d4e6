package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	job:<jobID>  — events for a specific job
//	jobs         — all job lifecycle events
//	firehose     — everything

const (
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for a specific job.
func JobTopic(jobID string) string { return "job:" + jobID }

// TopicRegistry manages subscriber sets per topic.
// It is safe for concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds a subscriber to a topic. Creates the topic if it
// doesn't exist.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe removes a subscriber from a topic. Cleans up empty topics.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// UnsubscribeAll removes a subscriber from all topics.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeTopic(topic)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// Close tears down a topic, detaching every subscriber on it. Returns
// subscribers whose last topic this was; the caller decides whether to
// close them outright.
func (tr *TopicRegistry) Close(topic string) []*Subscriber {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs := tr.topics[topic]
	delete(tr.topics, topic)

	var orphaned []*Subscriber
	for _, sub := range subs {
		if sub.removeTopic(topic) == 0 {
			orphaned = append(orphaned, sub)
		}
	}
	return orphaned
}

// Publish sends an event to all subscribers on the given topic.
// Returns the number of subscribers that received the event.
func (tr *TopicRegistry) Publish(topic string, evt *Event) int {
	tr.mu.RLock()
	subs := tr.topics[topic]
	// Copy to avoid holding lock during send.
	targets := make([]*Subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.send(evt) {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends an event to all subscribers on multiple topics.
// Deduplicates subscribers that are on more than one of the listed topics.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of active topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event should be published to.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose, TopicJobs}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity extracts the entity type and ID from a topic string.
// For example, "job:job_abc123" returns ("job", "job_abc123").
// Returns ("", "") for global topics like "jobs" or "firehose".
func ParseTopicEntity(topic string) (entityType, entityID string) {
	idx := strings.IndexByte(topic, ':')
	if idx < 0 {
		return "", ""
	}
	return topic[:idx], topic[idx+1:]
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}

	if entityType != "job" {
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
	return nil
}
