// Package retained implements the broker's retained-message store
// (spec §4.6, C6): a flat map keyed by topic name plus a linear scan
// for filter queries, the within-budget option the spec calls out
// explicitly over a topic-segment trie.
package retained

import (
	"sync"

	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/topic"
)

// Store holds at most one retained message per topic name.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*packet.Message
}

func New() *Store {
	return &Store{messages: make(map[string]*packet.Message)}
}

// Set replaces the retained message for msg.TopicName, or clears it if
// msg has a zero-length payload [MQTT-3.3.1-10/11].
func (s *Store) Set(msg *packet.Message) {
	if len(msg.Content) == 0 {
		s.Clear(msg.TopicName)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.TopicName] = msg
}

// Clear removes any retained message under topic.
func (s *Store) Clear(topicName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, topicName)
}

// Query returns every retained message whose topic matches filter, for
// replay to a newly accepted subscription (spec §4.7 "new subscription").
func (s *Store) Query(filter string) []*packet.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*packet.Message
	for name, msg := range s.messages {
		if topic.Match(filter, name) {
			out = append(out, msg)
		}
	}
	return out
}

// Len reports how many topics currently carry a retained message.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
