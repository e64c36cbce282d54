// Package export writes trimmed report payloads for downstream
// consumers (review pipelines, archival). The payload carries the
// headline numbers and the rendered Markdown, not the full incident
// lists.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/sitrep/pkg/report"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Payload is the exported document. Each export gets a fresh ID so
// downstream systems can dedupe reruns of the same window.
type Payload struct {
	ID          string        `json:"id"`
	Kind        window.Kind   `json:"kind"`
	Label       string        `json:"label"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Totals      report.Totals `json:"totals"`
	MTTRSeconds int64         `json:"mttrSeconds,omitempty"`
	OverSLA     int           `json:"overSLA"`
	Dropped     int           `json:"droppedRecords,omitempty"`
	Markdown    string        `json:"markdown"`
}

// Build assembles the payload from a report and its rendered Markdown.
func Build(r *report.Report, markdown string) Payload {
	p := Payload{
		ID:          uuid.NewString(),
		Kind:        r.Window.Kind,
		Label:       r.Window.Label,
		Start:       r.Window.Start,
		End:         r.Window.End,
		GeneratedAt: r.GeneratedAt,
		Totals:      r.Totals,
		OverSLA:     r.Attention.OverSLA,
		Dropped:     r.DroppedRecords,
		Markdown:    markdown,
	}
	if r.MTTR != nil {
		p.MTTRSeconds = int64(r.MTTR.Seconds())
	}
	return p
}

// Write persists the payload as indented JSON.
func Write(path string, p Payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export payload: %w", err)
	}
	return nil
}
