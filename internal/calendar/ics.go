package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"dayplanner/internal/model"
)

const maxFeedBytes = 8 << 20

// ICSClient reads a user's private ICS feed. The feed URL is the access token.
type ICSClient struct {
	client *http.Client
}

// NewICSClient builds a client. A nil http.Client gets a 15s default timeout.
func NewICSClient(client *http.Client) *ICSClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ICSClient{client: client}
}

// Fetch downloads and parses the feed. Day filtering is left to Normalize; recurring series are
// returned as their base event only.
func (c *ICSClient) Fetch(ctx context.Context, accessToken string, date time.Time, loc *time.Location) ([]RawEvent, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: no calendar linked", model.ErrAuth)
	}
	if loc == nil {
		loc = time.UTC
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrAuth, err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: feed %s returned %s", model.ErrAuth, redactURL(accessToken), resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: feed %s returned %s", model.ErrFetch, redactURL(accessToken), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read feed: %v", model.ErrFetch, err)
	}

	events, err := ParseFeed(body, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFetch, err)
	}
	log.Printf("[info] ics fetch feed=%s day=%s events=%d", redactURL(accessToken), date.Format(model.DayLayout), len(events))
	return events, nil
}

// ParseFeed converts VEVENTs into raw events. Timed bounds are rendered in loc.
func ParseFeed(body []byte, loc *time.Location) ([]RawEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	events := make([]RawEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := convertVEvent(ve, loc)
		if err != nil {
			log.Printf("[warn] skip vevent: %v", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func convertVEvent(ve *ical.VEvent, loc *time.Location) (RawEvent, error) {
	var ev RawEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return ev, fmt.Errorf("missing UID")
	}
	ev.ID = strings.TrimSpace(uid.Value)
	// Overrides of a recurring series share the UID.
	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil && rid.Value != "" {
		ev.ID += "_" + strings.TrimSpace(rid.Value)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.Status = strings.ToLower(strings.TrimSpace(p.Value))
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("event %s: missing DTSTART", ev.ID)
	}

	if isDateValue(dtStart) {
		start, err := time.Parse("20060102", strings.TrimSpace(dtStart.Value))
		if err != nil {
			return ev, fmt.Errorf("event %s: DTSTART: %w", ev.ID, err)
		}
		end := start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if t, err := time.Parse("20060102", strings.TrimSpace(dtEnd.Value)); err == nil && t.After(start) {
				end = t
			}
		}
		ev.Start = EventTime{Date: start.Format(model.DayLayout)}
		ev.End = EventTime{Date: end.Format(model.DayLayout)}
		return ev, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.ID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil || end.Before(start) {
		end = start
	}
	ev.Start = EventTime{DateTime: start.In(loc).Format(time.RFC3339)}
	ev.End = EventTime{DateTime: end.In(loc).Format(time.RFC3339)}
	return ev, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// redactURL keeps only scheme and host; feed paths are secrets.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/..."
}
