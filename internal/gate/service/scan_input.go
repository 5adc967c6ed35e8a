package service

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyScanInput = errors.New("scan input is empty")

// ScanInput is what a scanned code decodes to. EventID is empty for bare
// ticket ids.
type ScanInput struct {
	TicketID string
	EventID  string
}

type qrPayload struct {
	TicketID      string `json:"ticket_id"`
	TicketIDCamel string `json:"ticketId"`
	EventID       string `json:"event_id"`
	EventIDCamel  string `json:"eventId"`
}

// ParseScanInput accepts either a bare ticket id or a JSON QR payload
// such as {"ticket_id":"...","event_id":"..."}.
func ParseScanInput(raw string) (ScanInput, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ScanInput{}, ErrEmptyScanInput
	}
	if !strings.HasPrefix(raw, "{") {
		return ScanInput{TicketID: raw}, nil
	}

	var p qrPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// Not a payload we understand; treat the text as an opaque id so
		// the scan still produces a recorded verdict.
		return ScanInput{TicketID: raw}, nil
	}
	in := ScanInput{
		TicketID: firstNonEmpty(p.TicketID, p.TicketIDCamel),
		EventID:  firstNonEmpty(p.EventID, p.EventIDCamel),
	}
	if in.TicketID == "" {
		return ScanInput{}, ErrEmptyScanInput
	}
	return in, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
