package model

import (
	"testing"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Identity
		wantErr bool
	}{
		{name: "simple", input: "demo@1.0.0", want: Identity{ID: "demo", Version: "1.0.0"}},
		{name: "trims outer whitespace", input: "  demo@1.0.0\n", want: Identity{ID: "demo", Version: "1.0.0"}},
		{name: "dots dashes underscores", input: "a.b-c_d@2", want: Identity{ID: "a.b-c_d", Version: "2"}},
		{name: "empty", input: "", wantErr: true},
		{name: "no at", input: "demo1.0.0", wantErr: true},
		{name: "two ats", input: "demo@1@0", wantErr: true},
		{name: "internal whitespace", input: "de mo@1.0", wantErr: true},
		{name: "empty version", input: "demo@", wantErr: true},
		{name: "empty id", input: "@1.0.0", wantErr: true},
		{name: "id with slash", input: "de/mo@1.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseIdentity(%q) = %v, want error", tt.input, got)
				}
				if KindOf(err) != ErrIdentityInvalid {
					t.Errorf("error kind = %s, want %s", KindOf(err), ErrIdentityInvalid)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIdentity(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseIdentity(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIdentityCaseSensitive(t *testing.T) {
	a, err := ParseIdentity("Demo@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseIdentity("demo@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("identities differing only in case must not be equal")
	}
}

func TestIdentityString(t *testing.T) {
	id := Identity{ID: "demo", Version: "1.0.0"}
	if id.String() != "demo@1.0.0" {
		t.Errorf("String() = %q", id.String())
	}
}
