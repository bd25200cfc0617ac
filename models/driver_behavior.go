package models

import "strings"

// DriverBehaviorEvent is a normalized driver behavior event from the camera/telematics web book.
// The composite of FleetNumber, EventType and EventTime identifies one event.
type DriverBehaviorEvent struct {
	FleetNumber string  `json:"fleetNumber"`
	DriverName  string  `json:"driverName"`
	EventType   string  `json:"eventType"`
	EventTime   string  `json:"eventTime"`
	CameraID    string  `json:"cameraId"`
	VideoURL    string  `json:"videoUrl"`
	Severity    string  `json:"severity"`
	EventScore  float64 `json:"eventScore"`
	Notes       string  `json:"notes"`
	ReportedAt  string  `json:"reportedAt"`
	ReportedBy  string  `json:"reportedBy"`
	Status      string  `json:"status"`
	Points      int     `json:"points"`
}

// CompositeKey returns fleetNumber_eventType_eventTime, or "" if any part is missing
func (e *DriverBehaviorEvent) CompositeKey() string {
	if e.FleetNumber == "" || e.EventType == "" || e.EventTime == "" {
		return ""
	}
	return strings.Join([]string{e.FleetNumber, e.EventType, e.EventTime}, "_")
}

// Fields converts the event into storable document fields
func (e *DriverBehaviorEvent) Fields() map[string]any {
	return map[string]any{
		"fleetNumber": e.FleetNumber,
		"driverName":  e.DriverName,
		"eventType":   e.EventType,
		"eventTime":   e.EventTime,
		"cameraId":    e.CameraID,
		"videoUrl":    e.VideoURL,
		"severity":    e.Severity,
		"eventScore":  e.EventScore,
		"notes":       e.Notes,
		"reportedAt":  e.ReportedAt,
		"reportedBy":  e.ReportedBy,
		"status":      e.Status,
		"points":      e.Points,
		"eventKey":    e.CompositeKey(),
	}
}
