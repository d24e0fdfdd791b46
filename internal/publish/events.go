package publish

import (
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

const thermalEventType = "powerflowThermalPressure"

// EventReporter forwards calibration milestones and thermal pressure rises to
// the event reporter.
type EventReporter struct {
	add func(eventclient.Event) error
	now func() time.Time

	mu          sync.Mutex
	lastThermal power.ThermalPressure
}

func NewEventReporter() *EventReporter {
	return &EventReporter{add: eventclient.AddEvent, now: time.Now}
}

func (r *EventReporter) report(kind string, details map[string]interface{}) {
	err := r.add(eventclient.Event{
		Timestamp: r.now(),
		Type:      kind,
		Details:   details,
	})
	if err != nil {
		log.Errorf("Error adding event: %v", err)
	}
}

// CalibrationEvent has the signature of a calibration listener.
func (r *EventReporter) CalibrationEvent(kind string, details map[string]interface{}) {
	r.report(kind, details)
}

// Observe reports when thermal pressure rises to heavy or worse.
func (r *EventReporter) Observe(s power.Snapshot) {
	r.mu.Lock()
	previous := r.lastThermal
	if s.ThermalPressure != power.ThermalUnknown {
		r.lastThermal = s.ThermalPressure
	}
	r.mu.Unlock()

	if s.ThermalPressure >= power.ThermalHeavy && previous < power.ThermalHeavy {
		details := map[string]interface{}{
			"level": s.ThermalPressure.String(),
		}
		if s.Temperature.Valid {
			details["temperature"] = s.Temperature.Value
			details["temperatureSource"] = s.TemperatureSource
		}
		if s.PackagePower.Valid {
			details["packagePower"] = s.PackagePower.Value
		}
		r.report(thermalEventType, details)
	}
}
