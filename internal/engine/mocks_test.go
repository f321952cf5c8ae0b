package engine

import (
	"context"
	"sync"

	"github.com/mshop/cart-agent/internal/remote"
)

// mockRemote is an in-memory stand-in for the marketplace cart API.
type mockRemote struct {
	mu     sync.Mutex
	lines  []remote.Line
	nextID int64

	listErr   error
	createErr error
	updateErr error
	deleteErr error

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int

	// When set, List signals listEntered and then blocks until listGate
	// closes. Used to hold a sync pass open.
	listGate    chan struct{}
	listEntered chan struct{}
}

func newMockRemote() *mockRemote {
	return &mockRemote{nextID: 100}
}

func (m *mockRemote) List(_ context.Context, accountID int64) ([]remote.Line, error) {
	m.mu.Lock()
	m.listCalls++
	gate, entered := m.listGate, m.listEntered
	err := m.listErr
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]remote.Line, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

func (m *mockRemote) Create(_ context.Context, req remote.LineRequest) (*remote.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	line := remote.Line{
		ID:         m.nextID,
		AccountID:  req.AccountID,
		SaleItemID: req.SaleItemID,
		Quantity:   req.Quantity,
		Note:       req.Note,
	}
	m.lines = append(m.lines, line)
	return &line, nil
}

func (m *mockRemote) Update(_ context.Context, remoteID int64, req remote.LineRequest) (*remote.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for i := range m.lines {
		if m.lines[i].ID == remoteID {
			m.lines[i].Quantity = req.Quantity
			m.lines[i].Note = req.Note
			line := m.lines[i]
			return &line, nil
		}
	}
	return nil, &remote.Error{Kind: remote.KindNotFound, Op: "update"}
}

func (m *mockRemote) Delete(_ context.Context, remoteID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i := range m.lines {
		if m.lines[i].ID == remoteID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return nil
		}
	}
	return &remote.Error{Kind: remote.KindNotFound, Op: "delete"}
}

func (m *mockRemote) bySaleItem(saleItemID int64) (remote.Line, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lines {
		if l.SaleItemID == saleItemID {
			return l, true
		}
	}
	return remote.Line{}, false
}

func (m *mockRemote) calls() (list, create, update, del int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, m.createCalls, m.updateCalls, m.deleteCalls
}
