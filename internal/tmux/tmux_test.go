package tmux

import (
	"strings"
	"testing"
)

func TestTarget(t *testing.T) {
	if got := Target("CodeAgency", 2); got != "CodeAgency:2" {
		t.Errorf("Target = %q", got)
	}
}

func TestAttachCommand(t *testing.T) {
	if got := AttachCommand("orchestrator"); got != "tmux attach-session -t orchestrator" {
		t.Errorf("AttachCommand = %q", got)
	}
}

func TestParseSessionLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantName     string
		wantAttached bool
		wantErr      bool
	}{
		{"attached", "orchestrator" + fieldSep + "1", "orchestrator", true, false},
		{"detached", "CodeAgency" + fieldSep + "0", "CodeAgency", false, false},
		{"name with colon", "a:b" + fieldSep + "0", "a:b", false, false},
		{"malformed", "just-a-name", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, attached, err := parseSessionLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSessionLine: %v", err)
			}
			if name != tt.wantName || attached != tt.wantAttached {
				t.Errorf("got (%q, %v), want (%q, %v)", name, attached, tt.wantName, tt.wantAttached)
			}
		})
	}
}

func TestParseWindowLine(t *testing.T) {
	w, err := parseWindowLine("3" + fieldSep + "builder" + fieldSep + "1")
	if err != nil {
		t.Fatalf("parseWindowLine: %v", err)
	}
	if w.Index != 3 || w.Name != "builder" || !w.Active {
		t.Errorf("window = %+v", w)
	}

	if _, err := parseWindowLine("x" + fieldSep + "name" + fieldSep + "0"); err == nil {
		t.Error("expected error for non-numeric index")
	}
	if _, err := parseWindowLine("missing fields"); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestTailLines(t *testing.T) {
	text := "one\ntwo\nthree\nfour\n"

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"last two", 2, "three\nfour"},
		{"more than available", 10, "one\ntwo\nthree\nfour"},
		{"zero means all", 0, text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tailLines(text, tt.n); got != tt.want {
				t.Errorf("tailLines(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFieldSep_NotInTypicalNames(t *testing.T) {
	// The unit separator cannot appear in tmux session or window names typed
	// at a shell, which is why it is safe as a -F delimiter.
	if strings.ContainsAny("CodeAgency orchestrator window-1", fieldSep) {
		t.Error("field separator collides with ordinary names")
	}
}
