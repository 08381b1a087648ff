package memory

import (
	"context"
	"sync"

	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type HistoryStore struct {
	mu     sync.Mutex
	events []*repository.HistoryEvent
	nextID int64
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{nextID: 1}
}

func (s *HistoryStore) Append(ctx context.Context, event *repository.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	cp.ID = s.nextID
	s.nextID++
	s.events = append(s.events, &cp)
	return nil
}

func (s *HistoryStore) GetByLockerNumber(ctx context.Context, number string) ([]*repository.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*repository.HistoryEvent
	for _, event := range s.events {
		if event.LockerNumber != number {
			continue
		}
		cp := *event
		events = append(events, &cp)
	}
	return events, nil
}
