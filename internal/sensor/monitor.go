// Package sensor reports fingerprint sensor connectivity and template count.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/metrics"
	"fpconsole/internal/render"
)

// State is the tri-state sensor condition.
type State string

const (
	Connected    State = "connected"
	Disconnected State = "disconnected"
	Error        State = "error"
)

// Status is the result of one refresh. SensorType and TemplateCount are set
// only when Connected, Message only on Error.
type Status struct {
	State         State     `json:"state"`
	SensorType    string    `json:"sensor_type,omitempty"`
	TemplateCount int       `json:"template_count"`
	Message       string    `json:"message,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// StatusGetter queries the backend.
type StatusGetter interface {
	FingerprintStatus(ctx context.Context) (apiclient.StatusResponse, error)
}

// Monitor holds the latest sensor status.
type Monitor struct {
	api StatusGetter
	now func() time.Time

	mu   sync.RWMutex
	last Status
	ok   bool
}

func NewMonitor(api StatusGetter) *Monitor {
	return &Monitor{api: api, now: time.Now}
}

// Refresh queries the backend once and stores the mapped status. It is safe
// to call while an enrollment or removal is in progress.
func (m *Monitor) Refresh(ctx context.Context) Status {
	st := m.fetch(ctx)
	st.CheckedAt = m.now()

	m.mu.Lock()
	m.last = st
	m.ok = true
	m.mu.Unlock()

	metrics.SetSensorState(string(st.State), st.TemplateCount)
	return st
}

func (m *Monitor) fetch(ctx context.Context) Status {
	resp, err := m.api.FingerprintStatus(ctx)
	if err != nil {
		logger.LogError("sensor status check failed", err)
		return Status{State: Error, Message: "Failed to check sensor status: " + apperr.Message(err)}
	}
	switch resp.Status {
	case apiclient.SensorConnected:
		if resp.Data == nil {
			return Status{State: Error, Message: "sensor reported connected without details"}
		}
		return Status{State: Connected, SensorType: resp.Data.SensorType, TemplateCount: resp.Data.TemplateCount}
	case apiclient.SensorDisconnected:
		return Status{State: Disconnected}
	case apiclient.SensorError:
		return Status{State: Error, Message: resp.Message}
	}
	return Status{State: Error, Message: fmt.Sprintf("unknown sensor status %q", resp.Status)}
}

// Last returns the most recent status and whether any refresh happened yet.
func (m *Monitor) Last() (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.ok
}

// Run refreshes every interval until ctx is done. A zero interval disables it.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Render projects a status onto the sensor status box.
func Render(st Status) render.Alert {
	switch st.State {
	case Connected:
		return render.New(render.Success,
			"Status: Connected",
			"Sensor Type: "+st.SensorType,
			fmt.Sprintf("Templates Stored: %d", st.TemplateCount),
		)
	case Disconnected:
		return render.New(render.Danger,
			"Status: Disconnected",
			"The fingerprint sensor is not connected or not responding.",
			"Please check the hardware connection and restart the system.",
		)
	case Error:
		msg := st.Message
		if msg == "" {
			msg = "unknown error"
		}
		return render.New(render.Danger, "Status: Error", "Error message: "+msg)
	}
	return render.Alert{}
}
