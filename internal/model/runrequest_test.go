package model

import "testing"

func TestRunRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		req      RunRequest
		wantKind ErrorKind
	}{
		{name: "case only", req: RunRequest{TestCase: "demo@1"}},
		{name: "suite only", req: RunRequest{Suite: "s@1"}},
		{name: "plan only", req: RunRequest{Plan: "p@1"}},
		{name: "nothing set", req: RunRequest{}, wantKind: ErrRunRequestInvalid},
		{name: "two targets", req: RunRequest{TestCase: "a@1", Suite: "b@1"}, wantKind: ErrRunRequestInvalid},
		{name: "bad identity", req: RunRequest{TestCase: "nope"}, wantKind: ErrRunRequestInvalid},
		{
			name:     "plan with caseInputs",
			req:      RunRequest{Plan: "p@1", CaseInputs: map[string]any{"a": 1}},
			wantKind: ErrRunRequestInvalid,
		},
		{
			name:     "plan with nodeOverrides",
			req:      RunRequest{Plan: "p@1", NodeOverrides: map[string]NodeOverride{"n": {}}},
			wantKind: ErrRunRequestInvalid,
		},
		{
			name:     "suite with caseInputs",
			req:      RunRequest{Suite: "s@1", CaseInputs: map[string]any{"a": 1}},
			wantKind: ErrRunRequestInvalid,
		},
		{
			name: "suite with nodeOverrides is fine",
			req:  RunRequest{Suite: "s@1", NodeOverrides: map[string]NodeOverride{"n": {}}},
		},
		{
			name:     "case with nodeOverrides",
			req:      RunRequest{TestCase: "c@1", NodeOverrides: map[string]NodeOverride{"n": {}}},
			wantKind: ErrRunRequestInvalid,
		},
		{
			name: "case with caseInputs is fine",
			req:  RunRequest{TestCase: "c@1", CaseInputs: map[string]any{"a": 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("Validate() error kind = %s, want %s (err=%v)", KindOf(err), tt.wantKind, err)
			}
		})
	}
}

func TestRunRequestTarget(t *testing.T) {
	req := RunRequest{Suite: "s@1"}
	target, runType := req.Target()
	if target != "s@1" || runType != RunTypeTestSuite {
		t.Errorf("Target() = %s, %s", target, runType)
	}
}
