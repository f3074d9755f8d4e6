package id_test

import (
	"encoding/json"
	"testing"

	"github.com/musewave/maestro/id"
)

func TestNewAndParseRoundTrip(t *testing.T) {
	jobID := id.NewJobID()
	if jobID.IsNil() {
		t.Fatal("NewJobID returned nil ID")
	}
	if jobID.Prefix() != id.PrefixJob {
		t.Fatalf("prefix = %q, want %q", jobID.Prefix(), id.PrefixJob)
	}

	parsed, err := id.Parse(jobID.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != jobID.String() {
		t.Fatalf("round trip mismatch: %q != %q", parsed.String(), jobID.String())
	}
}

func TestParseWithPrefixRejectsMismatch(t *testing.T) {
	dlqID := id.NewDLQID()
	if _, err := id.ParseJobID(dlqID.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParseEmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	w := wrapper{ID: id.NewCredentialID()}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != w.ID.String() {
		t.Fatalf("json round trip mismatch: %q != %q", out.ID.String(), w.ID.String())
	}
}

func TestNilIDMarshalsEmpty(t *testing.T) {
	data, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("nil ID marshaled to %q, want empty", data)
	}
}
