package telemetry

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lanepilot/internal/pipeline"
)

// EncodeRecord converts a record to a Struct keyed by its JSON field names.
func EncodeRecord(r pipeline.Record) (*structpb.Struct, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", r.Seq, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal record %d: %w", r.Seq, err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("struct record %d: %w", r.Seq, err)
	}
	return s, nil
}

// DecodeRecord is the inverse of EncodeRecord. Transition is not carried on
// the wire and is always zero.
func DecodeRecord(s *structpb.Struct) (pipeline.Record, error) {
	var r pipeline.Record
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return r, fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
