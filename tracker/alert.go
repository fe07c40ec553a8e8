package tracker

import (
	"time"
)

type (
	// Alert is a message for the user. Alerts with the same Name replace each
	// other, so a repeating problem shows up only once.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int

	// Alerts collects the alerts the model has received and drops them when
	// they expire.
	Alerts struct {
		alerts []alertEntry
	}

	alertEntry struct {
		Alert
		expires time.Time
	}
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Add adds an alert, replacing a previous alert of the same name.
func (a *Alerts) Add(alert Alert, now time.Time) {
	if alert.Duration <= 0 {
		alert.Duration = defaultAlertDuration
	}
	e := alertEntry{Alert: alert, expires: now.Add(alert.Duration)}
	for i := range a.alerts {
		if alert.Name != "" && a.alerts[i].Name == alert.Name {
			a.alerts[i] = e
			return
		}
	}
	a.alerts = append(a.alerts, e)
}

// Active returns the alerts that have not expired, highest priority first.
func (a *Alerts) Active(now time.Time) []Alert {
	kept := a.alerts[:0]
	for _, e := range a.alerts {
		if now.Before(e.expires) {
			kept = append(kept, e)
		}
	}
	a.alerts = kept
	ret := make([]Alert, 0, len(kept))
	for p := Error; p >= Info; p-- {
		for _, e := range kept {
			if e.Priority == p {
				ret = append(ret, e.Alert)
			}
		}
	}
	return ret
}
