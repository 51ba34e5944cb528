package model

// EnvironmentOverrides carries request-level environment entries, applied
// as the highest-precedence layer of the effective environment.
type EnvironmentOverrides struct {
	Env map[string]string `json:"env,omitempty"`
}

// NodeOverride carries per-node input overrides for a suite run.
type NodeOverride struct {
	Inputs map[string]any `json:"inputs,omitempty"`
}

// RunRequest selects exactly one run target plus optional overrides.
type RunRequest struct {
	TestCase string `json:"testCase,omitempty"`
	Suite    string `json:"suite,omitempty"`
	Plan     string `json:"plan,omitempty"`

	EnvironmentOverrides *EnvironmentOverrides   `json:"environmentOverrides,omitempty"`
	CaseInputs           map[string]any          `json:"caseInputs,omitempty"`
	NodeOverrides        map[string]NodeOverride `json:"nodeOverrides,omitempty"`
}

// Target returns the selected identity string and run type.
func (r *RunRequest) Target() (string, RunType) {
	switch {
	case r.TestCase != "":
		return r.TestCase, RunTypeTestCase
	case r.Suite != "":
		return r.Suite, RunTypeTestSuite
	default:
		return r.Plan, RunTypeTestPlan
	}
}

// Validate enforces target exclusivity and the per-target constraints:
// plans forbid caseInputs and nodeOverrides, cases forbid nodeOverrides,
// suites forbid caseInputs.
func (r *RunRequest) Validate() error {
	set := 0
	for _, t := range []string{r.TestCase, r.Suite, r.Plan} {
		if t != "" {
			set++
		}
	}
	if set != 1 {
		return Errorf(ErrRunRequestInvalid, "exactly one of testCase, suite, plan must be set").
			With("reason", "TargetExclusivity")
	}
	target, _ := r.Target()
	if _, err := ParseIdentity(target); err != nil {
		return Errorf(ErrRunRequestInvalid, "target %q is not a valid identity", target).
			With("reason", "TargetIdentity")
	}
	switch {
	case r.Plan != "":
		if len(r.CaseInputs) > 0 || len(r.NodeOverrides) > 0 {
			return Errorf(ErrRunRequestInvalid, "plan requests accept no caseInputs or nodeOverrides").
				With("reason", "PlanOverrides")
		}
	case r.Suite != "":
		if len(r.CaseInputs) > 0 {
			return Errorf(ErrRunRequestInvalid, "suite requests accept no caseInputs").
				With("reason", "SuiteCaseInputs")
		}
	default:
		if len(r.NodeOverrides) > 0 {
			return Errorf(ErrRunRequestInvalid, "testCase requests accept no nodeOverrides").
				With("reason", "CaseNodeOverrides")
		}
	}
	return nil
}
