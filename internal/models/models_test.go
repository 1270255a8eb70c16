package models

import (
	"encoding/json"
	"testing"
)

func TestSnapshotPortAcceptsNumberAndObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want SnapshotPort
	}{
		{"java number", `{"port": 25565}`, SnapshotPort{IPv4: 25565}},
		{"bedrock object", `{"port": {"ipv4": 19132, "ipv6": 19133}}`, SnapshotPort{IPv4: 19132, IPv6: 19133}},
		{"null", `{"port": null}`, SnapshotPort{}},
		{"missing", `{}`, SnapshotPort{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snap Snapshot
			if err := json.Unmarshal([]byte(tt.in), &snap); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if snap.Port != tt.want {
				t.Errorf("Port = %+v, want %+v", snap.Port, tt.want)
			}
		})
	}
}

func TestSnapshotPortRejectsGarbage(t *testing.T) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(`{"port": "abc"}`), &snap); err == nil {
		t.Fatal("expected an error for a string port")
	}
}

func TestNewKeyIsCaseInsensitive(t *testing.T) {
	a := NewKey("  Play.Example.NET ", EditionJava)
	b := NewKey("play.example.net", EditionJava)
	if a != b {
		t.Errorf("keys differ: %v vs %v", a, b)
	}
	if got, want := a.String(), "play.example.net|java"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if NewKey("play.example.net", EditionBedrock) == b {
		t.Error("editions must not share a key")
	}
}

func TestStatusQueryMode(t *testing.T) {
	s := Status{Java: &JavaFields{}}
	if s.QueryMode() {
		t.Error("plain java status reported query mode")
	}
	s.Java.Query = &QueryFields{}
	if !s.QueryMode() {
		t.Error("query fields present but QueryMode() is false")
	}
	if (Status{Bedrock: &BedrockFields{}}).QueryMode() {
		t.Error("bedrock status reported query mode")
	}
}
