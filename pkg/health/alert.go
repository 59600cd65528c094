package health

import (
	"time"

	"go.uber.org/zap"
)

// Severity ranks how urgently an alert needs attention
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Condition names the situation that triggered an alert. At most one active
// alert exists per (source, condition); a newer alert supersedes the prior
// one.
type Condition string

const (
	ConditionSlowResponse        Condition = "slow_response"
	ConditionConnectionFailure   Condition = "connection_failure"
	ConditionConsecutiveFailures Condition = "consecutive_failures"
	ConditionRateLimited         Condition = "rate_limited"
)

// Alert is one raised health condition
type Alert struct {
	ID           int64     `json:"id"`
	SourceName   string    `json:"source_name"`
	Condition    Condition `json:"condition"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// raiseLocked appends an alert, superseding any active alert for the same
// source and condition. Callers hold m.mu.
func (m *Monitor) raiseLocked(sourceName string, condition Condition, severity Severity, message string) {
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if a.SourceName == sourceName && a.Condition == condition && !a.Acknowledged {
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept

	m.nextID++
	alert := Alert{
		ID:         m.nextID,
		SourceName: sourceName,
		Condition:  condition,
		Severity:   severity,
		Message:    message,
		CreatedAt:  time.Now(),
	}
	m.alerts = append(m.alerts, alert)

	m.logger.Warn("alert raised",
		zap.Int64("alert_id", alert.ID),
		zap.String("source", sourceName),
		zap.String("condition", string(condition)),
		zap.String("severity", string(severity)),
		zap.String("message", message))
}

// hasActiveLocked reports whether an unacknowledged alert exists for the
// source and condition. Callers hold m.mu.
func (m *Monitor) hasActiveLocked(sourceName string, condition Condition) bool {
	for _, a := range m.alerts {
		if a.SourceName == sourceName && a.Condition == condition && !a.Acknowledged {
			return true
		}
	}
	return false
}

// dropActiveLocked removes the source's active alerts without a recovery
// log line, used when an escalating alert supersedes them. Callers hold
// m.mu.
func (m *Monitor) dropActiveLocked(sourceName string) int {
	kept := m.alerts[:0]
	var dropped int
	for _, a := range m.alerts {
		if a.SourceName == sourceName && !a.Acknowledged {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return dropped
}

// clearSourceLocked drops every active alert for a recovered source.
// Callers hold m.mu.
func (m *Monitor) clearSourceLocked(sourceName string) {
	cleared := m.dropActiveLocked(sourceName)

	if cleared > 0 {
		m.logger.Info("alerts cleared on recovery",
			zap.String("source", sourceName),
			zap.Int("count", cleared))
	}
}

// ActiveAlerts returns the unacknowledged alerts, oldest first
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Acknowledged {
			active = append(active, a)
		}
	}
	return active
}

// Acknowledge marks an alert handled, removing it from the active list
func (m *Monitor) Acknowledge(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id && !m.alerts[i].Acknowledged {
			m.alerts[i].Acknowledged = true
			m.logger.Info("alert acknowledged", zap.Int64("alert_id", id))
			return true
		}
	}
	return false
}
