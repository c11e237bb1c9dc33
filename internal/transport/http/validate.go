package http

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/pagepulse/pagepulse/internal/event"
)

// Boundary validation. Anything that passes here is considered well-formed by
// the core services; malformed input never reaches them.

var eventTypeRe = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)

var validDevices = map[string]bool{
	event.DeviceMobile:  true,
	event.DeviceDesktop: true,
	event.DeviceTablet:  true,
	event.DeviceOther:   true,
}

const (
	minAppNameLen = 3
	maxAppNameLen = 100
)

func validateEventType(t string) error {
	if !eventTypeRe.MatchString(t) {
		return fmt.Errorf("event_type must match %s", eventTypeRe.String())
	}
	return nil
}

func validateWebURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) url")
	}
	return nil
}

func validateAppName(name string) error {
	if len(name) < minAppNameLen || len(name) > maxAppNameLen {
		return fmt.Errorf("name must be between %d and %d characters", minAppNameLen, maxAppNameLen)
	}
	return nil
}

// ingestEventRequest is the wire shape of an inbound event
type ingestEventRequest struct {
	EventType string         `json:"event_type"`
	URL       string         `json:"url,omitempty"`
	Referrer  string         `json:"referrer,omitempty"`
	Device    string         `json:"device,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// validate checks the request and converts it into a core payload.
func (req *ingestEventRequest) validate() (event.Payload, error) {
	var p event.Payload

	if err := validateEventType(req.EventType); err != nil {
		return p, err
	}
	if req.URL != "" {
		if err := validateWebURL(req.URL); err != nil {
			return p, err
		}
	}
	if req.Referrer != "" {
		if err := validateWebURL(req.Referrer); err != nil {
			return p, fmt.Errorf("referrer: %w", err)
		}
	}
	if req.Device != "" && !validDevices[req.Device] {
		return p, fmt.Errorf("device must be one of mobile, desktop, tablet, other")
	}

	p = event.Payload{
		EventType: req.EventType,
		URL:       req.URL,
		Referrer:  req.Referrer,
		Device:    req.Device,
		Metadata:  req.Metadata,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	}

	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return event.Payload{}, fmt.Errorf("timestamp must be RFC 3339")
		}
		p.OccurredAt = &ts
	}

	return p, nil
}

// parseDateRange reads optional start_date/end_date query params as inclusive
// UTC calendar days.
func parseDateRange(startDate, endDate string) (from, to time.Time, err error) {
	if startDate != "" {
		from, err = time.ParseInLocation("2006-01-02", startDate, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
	}
	if endDate != "" {
		to, err = time.ParseInLocation("2006-01-02", endDate, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date is before start_date")
	}
	return from, to, nil
}
