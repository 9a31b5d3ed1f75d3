package events

import (
	"context"
	"sync"
	"time"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/pkg/logger"
)

// EventType represents the type of event.
type EventType string

const (
	// EventCampaignUpserted is emitted when a campaign is created or updated
	EventCampaignUpserted EventType = "campaign.upserted"
	// EventEligibilityChecked is emitted after a wallet-wide eligibility check
	EventEligibilityChecked EventType = "eligibility.checked"
	// EventPointsRefreshed is emitted after a points refresh for a wallet
	EventPointsRefreshed EventType = "points.refreshed"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// CampaignUpsertedData contains data for campaign upserted events.
type CampaignUpsertedData struct {
	Campaign models.Campaign
}

// EligibilityCheckedData contains data for eligibility checked events.
type EligibilityCheckedData struct {
	WalletAddress string
	Checks        []models.EligibilityCheck
	EligibleCount int
	CheckedAt     time.Time
}

// PointsRefreshedData contains data for points refreshed events.
type PointsRefreshedData struct {
	WalletAddress string
	Balances      []models.PointsBalance
	RefreshedAt   time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	wg       sync.WaitGroup
	handlers map[EventType][]Handler
	enabled  bool
	gate     func() bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// SetGate installs a check consulted on every Publish; events are dropped
// while it reports false. It lets a runtime flag pause delivery without
// losing subscriptions.
func (m *Manager) SetGate(gate func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. A nil Manager is a
// valid no-op publisher.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if m == nil {
		return
	}

	m.mu.RLock()
	enabled := m.enabled
	gate := m.gate
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 || (gate != nil && !gate()) {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Handlers run detached from the request lifetime.
	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				logger.WithFields(map[string]interface{}{
					"event": string(event.Type),
				}).Warnf("Event handler failed: %v", err)
			}
		}(handler)
	}
}

// PublishCampaignUpserted publishes a campaign upserted event.
func (m *Manager) PublishCampaignUpserted(ctx context.Context, campaign models.Campaign) {
	m.Publish(ctx, EventCampaignUpserted, CampaignUpsertedData{Campaign: campaign})
}

// PublishEligibilityChecked publishes an eligibility checked event.
func (m *Manager) PublishEligibilityChecked(ctx context.Context, wallet string, checks []models.EligibilityCheck) {
	eligible := 0
	for _, c := range checks {
		if c.IsEligible {
			eligible++
		}
	}
	m.Publish(ctx, EventEligibilityChecked, EligibilityCheckedData{
		WalletAddress: wallet,
		Checks:        checks,
		EligibleCount: eligible,
		CheckedAt:     time.Now(),
	})
}

// PublishPointsRefreshed publishes a points refreshed event.
func (m *Manager) PublishPointsRefreshed(ctx context.Context, wallet string, balances []models.PointsBalance) {
	m.Publish(ctx, EventPointsRefreshed, PointsRefreshedData{
		WalletAddress: wallet,
		Balances:      balances,
		RefreshedAt:   time.Now(),
	})
}

// LogHandler logs a one-line summary of each event.
func LogHandler(ctx context.Context, event Event) error {
	fields := map[string]interface{}{"event": string(event.Type)}
	switch d := event.Data.(type) {
	case EligibilityCheckedData:
		fields["wallet"] = logger.ShortWallet(d.WalletAddress)
		fields["campaigns"] = len(d.Checks)
		fields["eligible"] = d.EligibleCount
	case PointsRefreshedData:
		fields["wallet"] = logger.ShortWallet(d.WalletAddress)
		fields["programs"] = len(d.Balances)
	case CampaignUpsertedData:
		fields["campaign"] = d.Campaign.ID
		fields["status"] = string(d.Campaign.Status)
	}
	logger.WithFields(fields).Info("Event published")
	return nil
}

// Wait blocks until in-flight handlers have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown disables publishing and waits for in-flight handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
