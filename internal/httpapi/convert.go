package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ── Scan ─────────────────────────────────────────────────────────────────────

func scanRequestFromProto(p *structpb.Struct) types.ScanRequest {
	f := p.GetFields()
	return types.ScanRequest{
		StaffID: f["staff_id"].GetStringValue(),
		GateID:  f["gate_id"].GetStringValue(),
		EventID: f["event_id"].GetStringValue(),
		Input:   f["input"].GetStringValue(),
	}
}

func scanResultToProto(r scanResponse) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"status":    structpb.NewStringValue(string(r.Status)),
		"reason":    structpb.NewStringValue(r.Reason),
		"ticket_id": structpb.NewStringValue(r.TicketID),
	}
	if r.RecordID != "" {
		fields["record_id"] = structpb.NewStringValue(r.RecordID)
	}
	if r.Warning != "" {
		fields["warning"] = structpb.NewStringValue(r.Warning)
	}
	if m := r.Metadata; m != nil {
		fields["metadata"] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"gate_id":     structpb.NewStringValue(m.GateID),
			"staff_id":    structpb.NewStringValue(m.StaffID),
			"scanned_at":  structpb.NewStringValue(m.ScannedAt.Format(time.RFC3339Nano)),
			"tier":        structpb.NewStringValue(m.Tier),
			"seat_number": structpb.NewStringValue(m.SeatNumber),
		}})
	}
	return &structpb.Struct{Fields: fields}
}
