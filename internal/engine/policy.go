package engine

import "logwarden/internal/config"

// alertPolicy is the fixed class-membership rule deciding which
// classifications produce a durable alert in addition to the log row.
// Severity and score never trigger alerts on their own.
type alertPolicy struct {
	classes map[int]bool
}

func buildAlertPolicy(cfg *config.Config) *alertPolicy {
	ids := cfg.Alerts.Classes
	if ids == nil {
		ids = []int{1, 2}
	}
	p := &alertPolicy{classes: make(map[int]bool, len(ids))}
	for _, id := range ids {
		p.classes[id] = true
	}
	return p
}

func (p *alertPolicy) ShouldAlert(classID int) bool {
	return p.classes[classID]
}
