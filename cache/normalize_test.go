package cache_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/musewave/maestro/cache"
)

func mustKey(t *testing.T, jobType, params string) string {
	t.Helper()
	k, err := cache.Key(jobType, json.RawMessage(params))
	if err != nil {
		t.Fatalf("Key(%q): %v", params, err)
	}
	return k
}

func TestKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := mustKey(t, "AUDIO", `{"genre":"Synthwave","mood":"  Dreamy "}`)
	b := mustKey(t, "AUDIO", `{"genre":"synthwave","mood":"dreamy"}`)
	if a != b {
		t.Errorf("keys differ for case/whitespace variants:\n%s\n%s", a, b)
	}
}

func TestKey_ObjectKeyOrderInsensitive(t *testing.T) {
	a := mustKey(t, "PLAN", `{"genre":"jazz","bpm":120}`)
	b := mustKey(t, "PLAN", `{"bpm":120,"genre":"jazz"}`)
	if a != b {
		t.Errorf("keys differ for reordered object keys:\n%s\n%s", a, b)
	}
}

func TestKey_ScalarArrayOrderInsensitive(t *testing.T) {
	a := mustKey(t, "MIX", `{"stems":["vocals","drums","bass"]}`)
	b := mustKey(t, "MIX", `{"stems":["bass","vocals","drums"]}`)
	if a != b {
		t.Errorf("keys differ for reordered scalar arrays:\n%s\n%s", a, b)
	}
}

func TestKey_ObjectArrayOrderPreserved(t *testing.T) {
	a := mustKey(t, "PLAN", `{"sections":[{"name":"verse"},{"name":"chorus"}]}`)
	b := mustKey(t, "PLAN", `{"sections":[{"name":"chorus"},{"name":"verse"}]}`)
	if a == b {
		t.Error("keys equal for reordered object arrays; section order is meaningful")
	}
}

func TestKey_DifferentParamsDiffer(t *testing.T) {
	a := mustKey(t, "AUDIO", `{"genre":"jazz"}`)
	b := mustKey(t, "AUDIO", `{"genre":"metal"}`)
	if a == b {
		t.Error("keys equal for different params")
	}
}

func TestKey_TypePrefixed(t *testing.T) {
	a := mustKey(t, "AUDIO", `{"genre":"jazz"}`)
	b := mustKey(t, "VOCALS", `{"genre":"jazz"}`)
	if a == b {
		t.Error("keys equal across job types")
	}
	if !strings.HasPrefix(a, "AUDIO:") {
		t.Errorf("key %q not prefixed with job type", a)
	}
}

func TestKey_EmptyParams(t *testing.T) {
	a := mustKey(t, "PLAN", "")
	b := mustKey(t, "PLAN", "null")
	if a != b {
		t.Errorf("empty params and null should collide:\n%s\n%s", a, b)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	params := json.RawMessage(`{"b":[3,1,2],"a":{"y":true,"x":null},"s":" Hi "}`)
	first, err := cache.Normalize(params)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := cache.Normalize(params)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(first) {
			t.Fatalf("normalization unstable: %s vs %s", first, again)
		}
	}
	want := `{"a":{"x":null,"y":true},"b":[1,2,3],"s":"hi"}`
	if string(first) != want {
		t.Errorf("canonical form = %s, want %s", first, want)
	}
}

func TestNormalize_NumbersKeepRepresentation(t *testing.T) {
	got, err := cache.Normalize(json.RawMessage(`{"bpm":120.0}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"bpm":120.0}` {
		t.Errorf("canonical form = %s, want bpm source representation preserved", got)
	}
}
