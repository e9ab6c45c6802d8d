// Package calendar maps game days to descriptive school events.
// It is display-only: pricing and order validation never consult it.
package calendar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maejeom/market-game/internal/model"
)

// Ordinary is returned for days without a scheduled event.
var Ordinary = model.EventDescriptor{Code: "normal", Title: "ordinary day"}

// Calendar is a static day -> event table.
type Calendar struct {
	events map[int]model.EventDescriptor
}

// New copies events into a calendar.
func New(events map[int]model.EventDescriptor) *Calendar {
	c := &Calendar{events: make(map[int]model.EventDescriptor, len(events))}
	for day, ev := range events {
		c.events[day] = ev
	}
	return c
}

// Empty returns a calendar where every day is ordinary.
func Empty() *Calendar { return New(nil) }

// Default is the school term schedule shipped with the game.
func Default() *Calendar {
	return New(map[int]model.EventDescriptor{
		3:  {Code: "mock_exam", Title: "mock exam", Desc: "Students stay in for the exam; snacks sell between periods."},
		8:  {Code: "field_trip", Title: "field trip", Desc: "Half the school is out on a field trip."},
		12: {Code: "sports_day", Title: "sports day", Desc: "Outdoor events all day."},
		17: {Code: "midterm", Title: "midterm exams", Desc: "Early dismissal during the exam week."},
		24: {Code: "festival", Title: "school festival", Desc: "Visitors from outside the school."},
		30: {Code: "closing", Title: "closing day", Desc: "Last day of the term."},
	})
}

// Lookup returns the event for day, or Ordinary.
func (c *Calendar) Lookup(day int) model.EventDescriptor {
	if c == nil {
		return Ordinary
	}
	if ev, ok := c.events[day]; ok {
		return ev
	}
	return Ordinary
}

// Label is the short event title used in the simulated series.
func (c *Calendar) Label(day int) string {
	return c.Lookup(day).Title
}

type fileEntry struct {
	Day                   int `yaml:"day"`
	model.EventDescriptor `yaml:",inline"`
}

type fileFormat struct {
	Events []fileEntry `yaml:"events"`
}

// Load reads a calendar from a YAML file of the form
//
//	events:
//	  - day: 3
//	    code: mock_exam
//	    title: mock exam
//	    desc: ...
func Load(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes the YAML calendar format accepted by Load.
func Parse(data []byte) (*Calendar, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	events := make(map[int]model.EventDescriptor, len(f.Events))
	for _, e := range f.Events {
		if e.Day < 1 {
			return nil, fmt.Errorf("parse calendar: day must be >= 1, got %d", e.Day)
		}
		if e.Code == "" {
			return nil, fmt.Errorf("parse calendar: day %d has no code", e.Day)
		}
		if _, dup := events[e.Day]; dup {
			return nil, fmt.Errorf("parse calendar: day %d listed twice", e.Day)
		}
		events[e.Day] = e.EventDescriptor
	}
	return New(events), nil
}
