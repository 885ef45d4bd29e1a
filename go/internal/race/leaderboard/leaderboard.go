package leaderboard

import (
	"math"
	"sort"
)

// LapEvent is a single reported lap crossing.
type LapEvent struct {
	TagID          int
	DisplayName    string
	LapNumber      int
	LapTimeSeconds float64
}

// Record holds the rolling stats of one driver within a session.
type Record struct {
	TagID              int
	DisplayName        string
	LapCount           int
	LastLapTimeSeconds float64
	// BestLapTimeSeconds is +Inf until the first lap time is observed.
	BestLapTimeSeconds float64

	seq uint64
}

// HasBest reports whether a best lap has been observed.
func (r Record) HasBest() bool {
	return !math.IsInf(r.BestLapTimeSeconds, 1)
}

// Standing is one ranked row of the leaderboard.
type Standing struct {
	Position       int      `json:"position"`
	TagID          int      `json:"tag_id"`
	DisplayName    string   `json:"nickname"`
	Laps           int      `json:"laps"`
	LastLapSeconds float64  `json:"last_lap_time"`
	BestLapSeconds *float64 `json:"best_lap_time"`
	LapsBehind     int      `json:"laps_behind"`
}

// ApplyResult describes how an event changed the table.
type ApplyResult struct {
	Created bool
	// Regressed is set when the event carried a lower lap number than the one already
	// recorded. The event is still applied.
	Regressed    bool
	PreviousLaps int
}

// Aggregator folds lap events into per-driver records. It is a pure function of the event
// sequence plus Reset and is not safe for concurrent use.
type Aggregator struct {
	records map[int]*Record
	nextSeq uint64
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{records: make(map[int]*Record)}
}

// Apply folds one event in. Events are never rejected: out-of-order or repeated lap
// numbers overwrite the lap count and last lap time.
func (a *Aggregator) Apply(ev LapEvent) ApplyResult {
	var res ApplyResult

	rec, ok := a.records[ev.TagID]
	if !ok {
		rec = &Record{
			TagID:              ev.TagID,
			DisplayName:        ev.DisplayName,
			BestLapTimeSeconds: math.Inf(1),
			seq:                a.nextSeq,
		}
		a.nextSeq++
		a.records[ev.TagID] = rec
		res.Created = true
	}

	res.PreviousLaps = rec.LapCount
	res.Regressed = !res.Created && ev.LapNumber < rec.LapCount

	rec.LapCount = ev.LapNumber
	rec.LastLapTimeSeconds = ev.LapTimeSeconds
	if ev.LapTimeSeconds < rec.BestLapTimeSeconds {
		rec.BestLapTimeSeconds = ev.LapTimeSeconds
	}
	return res
}

// Reset clears every record.
func (a *Aggregator) Reset() {
	a.records = make(map[int]*Record)
	a.nextSeq = 0
}

// Len returns the number of drivers seen this session.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Record returns a copy of the record for tagID.
func (a *Aggregator) Record(tagID int) (Record, bool) {
	rec, ok := a.records[tagID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all records in ranked order: lap count descending, then best
// lap ascending with unset best last, then first-seen order.
func (a *Aggregator) Records() []Record {
	out := make([]Record, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LapCount != out[j].LapCount {
			return out[i].LapCount > out[j].LapCount
		}
		if out[i].BestLapTimeSeconds != out[j].BestLapTimeSeconds {
			return out[i].BestLapTimeSeconds < out[j].BestLapTimeSeconds
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Ranked returns the ranked view used for rendering.
func (a *Aggregator) Ranked() []Standing {
	records := a.Records()
	out := make([]Standing, len(records))
	for i, rec := range records {
		s := Standing{
			Position:       i + 1,
			TagID:          rec.TagID,
			DisplayName:    rec.DisplayName,
			Laps:           rec.LapCount,
			LastLapSeconds: rec.LastLapTimeSeconds,
			LapsBehind:     records[0].LapCount - rec.LapCount,
		}
		if rec.HasBest() {
			best := rec.BestLapTimeSeconds
			s.BestLapSeconds = &best
		}
		out[i] = s
	}
	return out
}
