package diagnose

import "testing"

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"uuid",
			"session 8f14e45f-ceea-4a78-a2b7-0c63f36812a9 expired",
			"session <uuid> expired",
		},
		{
			"timestamp",
			"failed at 2026-08-31T12:04:55Z retrying",
			"failed at <timestamp> retrying",
		},
		{
			"quoted path",
			`cannot open "/tmp/build/out.log" for writing`,
			"cannot open <path> for writing",
		},
		{
			"hex address",
			"fault at 0xDEADBEEF in handler",
			"fault at <hex> in handler",
		},
		{
			"plain numbers",
			"exit status 137 after 30 seconds",
			"exit status <n> after <n> seconds",
		},
		{
			"duration",
			"command timed out after 2.5s",
			"command timed out after <duration>",
		},
		{
			"stable text untouched",
			"element not found: submit_button",
			"element not found: submit_button",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeMessage(tt.in); got != tt.want {
				t.Errorf("normalizeMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestSignatureStability: messages differing only in volatile fragments
// share one signature; different categories or stable text do not.
func TestSignatureStability(t *testing.T) {
	a := computeSignature(CategoryTimeout, "command timed out after 30s")
	b := computeSignature(CategoryTimeout, "command timed out after 45s")
	if a != b {
		t.Error("signatures differ across volatile numbers")
	}

	c := computeSignature(CategoryTimeout, "command timed out waiting for dialog")
	if a == c {
		t.Error("distinct messages share a signature")
	}

	d := computeSignature(CategoryExecutionFailure, "command timed out after 30s")
	if a == d {
		t.Error("distinct categories share a signature")
	}
}
