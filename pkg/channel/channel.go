package channel

import (
	"context"

	"trovobridge/pkg/activity"
)

// Handler is the application logic reached at the end of an adapter's
// middleware pipeline.
type Handler = activity.Handler

// Adapter bridges one external chat transport (for example Trovo) into the
// activity pipeline.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Stats is a point-in-time snapshot of an adapter's counters.
type Stats struct {
	Frames     uint64 `json:"frames"`
	TextFrames uint64 `json:"text_frames"`
	Dropped    uint64 `json:"dropped"`
	Skipped    uint64 `json:"skipped"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
}

// StatsReporter is implemented by adapters that keep counters.
type StatsReporter interface {
	Stats() Stats
}
