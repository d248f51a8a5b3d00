package engine

import "time"

type EventType int

const (
	EventOpen EventType = iota
	EventClose
	EventStopHit
	EventTakeProfitHit
	EventSignalRejected
	EventFinalMark
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventStopHit:
		return "stop_hit"
	case EventTakeProfitHit:
		return "take_profit_hit"
	case EventSignalRejected:
		return "signal_rejected"
	case EventFinalMark:
		return "final_mark"
	}
	return "unknown"
}

// Event records one simulator decision for later inspection.
type Event struct {
	Ts     time.Time
	Type   EventType
	Symbol string
	Detail string
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Count returns how many events of the given type were recorded.
func (l *EventLog) Count(t EventType) int {
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
