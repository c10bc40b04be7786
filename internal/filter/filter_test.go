package filter

import "testing"

func TestCleanInput(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  idea  ", "idea"},
		{"line1\r\nline2\tx", "line1\nline2\tx"},
		{"bell\x07 zero\u200bw", "bell zerow"},
		{"ไอเดีย\x00", "ไอเดีย"},
		{"\ufeffBOM start", "BOM start"},
		{string([]byte{0xff, 'a'}), "\uFFFDa"},
	}
	for _, tc := range cases {
		if got := CleanInput(tc.in); got != tc.want {
			t.Fatalf("CleanInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidUUID(t *testing.T) {
	if !ValidUUID("3f7c1a9e-2b4d-4c8e-9a1f-0d2e3f4a5b6c") {
		t.Fatalf("expected valid uuid")
	}
	for _, s := range []string{"", "not-a-uuid", "3f7c1a9e2b4d4c8e9a1f0d2e3f4a5b6c", "urn:uuid:3f7c1a9e-2b4d-4c8e-9a1f-0d2e3f4a5b6c"} {
		if ValidUUID(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("founder@startup.io") {
		t.Fatalf("expected valid email")
	}
	for _, s := range []string{"", "founder", "founder@localhost", "Founder <founder@startup.io>"} {
		if ValidEmail(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}
