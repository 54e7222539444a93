package execclient

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

// LifecycleStore is the in-process client_order_id -> OrderLifecycle map.
// Transitions are forward-only: created -> {acknowledged|rejected};
// acknowledged -> partial_fill* -> filled. rejected and filled are terminal.
type LifecycleStore struct {
	mu    sync.Mutex
	state map[string]*model.OrderLifecycle
}

func NewLifecycleStore() *LifecycleStore {
	return &LifecycleStore{state: make(map[string]*model.OrderLifecycle)}
}

// RecordSubmission inserts the initial lifecycle row from a submission
// result (acknowledged, dry_run_acknowledged, or rejected).
func (s *LifecycleStore) RecordSubmission(submission model.OrderSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state[submission.ClientOrderID]; exists {
		return
	}

	status := model.LifecycleRejected
	if submission.Accepted {
		status = model.LifecycleAcknowledged
	}
	s.state[submission.ClientOrderID] = &model.OrderLifecycle{
		ClientOrderID:     submission.ClientOrderID,
		Status:            status,
		FilledNotionalUSD: decimal.Zero,
		UpdateTS:          time.Now().UTC(),
	}
}

func (s *LifecycleStore) MarkPartialFill(cid string, filledNotionalUSD decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.state[cid]
	if !ok || isTerminal(row.Status) {
		return
	}
	row.FilledNotionalUSD = row.FilledNotionalUSD.Add(filledNotionalUSD)
	row.Status = model.LifecyclePartialFill
	row.UpdateTS = time.Now().UTC()
}

func (s *LifecycleStore) MarkFilled(cid string, totalFilledNotionalUSD decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.state[cid]
	if !ok || isTerminal(row.Status) {
		return
	}
	row.FilledNotionalUSD = totalFilledNotionalUSD
	row.Status = model.LifecycleFilled
	row.UpdateTS = time.Now().UTC()
}

func (s *LifecycleStore) Get(cid string) (model.OrderLifecycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.state[cid]
	if !ok {
		return model.OrderLifecycle{}, false
	}
	return *row, true
}

func isTerminal(status string) bool {
	return status == model.LifecycleRejected || status == model.LifecycleFilled
}
