package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDispatch   = "dispatch"
	MeasurementValidation = "validation"
)

// DispatchPoint describes one remote call.
type DispatchPoint struct {
	DeviceType string
	Code       string
	Value      bool
	Success    bool
	Duration   time.Duration
	Time       time.Time
}

// WriteDispatch records a dispatch outcome.
func (c *Client) WriteDispatch(p DispatchPoint) {
	if !c.IsConnected() {
		return
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"device_type": p.DeviceType,
			"code":        p.Code,
			"success":     boolTag(p.Success),
		},
		map[string]interface{}{
			"value":       p.Value,
			"duration_ms": float64(p.Duration) / float64(time.Millisecond),
			"count":       1,
		},
		ts,
	))
}

// WriteValidation records the reason a message was accepted or rejected.
// Pass an empty deviceType for rejections so client-supplied names never
// become tag values.
func (c *Client) WriteValidation(reason, deviceType string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"reason": reason}
	if deviceType != "" {
		tags["device_type"] = deviceType
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementValidation,
		tags,
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
