package chat

import (
	"errors"
	"fmt"
)

var ErrUnknownMessage = errors.New("unknown message")

// Store is an append-only log of chat turns. Messages are never removed;
// only the text and streaming flag of an existing message can change.
type Store struct {
	msgs []Message
	pos  map[string]int
	seq  int
}

func NewStore() *Store {
	return &Store{pos: make(map[string]int)}
}

// Append assigns the next id to m and adds it to the end of the log. Any id
// already set on m is ignored so ids stay unique within the store.
func (s *Store) Append(m Message) Message {
	s.seq++
	m.ID = fmt.Sprintf("%s-%d", m.Sender, s.seq)
	s.pos[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
	return m
}

func (s *Store) Get(id string) (Message, bool) {
	i, ok := s.pos[id]
	if !ok {
		return Message{}, false
	}
	return s.msgs[i], true
}

func (s *Store) UpdateText(id, text string) (Message, error) {
	i, ok := s.pos[id]
	if !ok {
		return Message{}, fmt.Errorf("update text %s: %w", id, ErrUnknownMessage)
	}
	s.msgs[i].Text = text
	return s.msgs[i], nil
}

func (s *Store) AppendText(id, chunk string) (Message, error) {
	i, ok := s.pos[id]
	if !ok {
		return Message{}, fmt.Errorf("append text %s: %w", id, ErrUnknownMessage)
	}
	s.msgs[i].Text += chunk
	return s.msgs[i], nil
}

func (s *Store) SetStreaming(id string, streaming bool) (Message, error) {
	i, ok := s.pos[id]
	if !ok {
		return Message{}, fmt.Errorf("set streaming %s: %w", id, ErrUnknownMessage)
	}
	s.msgs[i].Streaming = streaming
	return s.msgs[i], nil
}

// Messages returns a copy of the log in insertion order.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	return len(s.msgs)
}
