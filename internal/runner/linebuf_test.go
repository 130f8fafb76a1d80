package runner

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func collect(t *testing.T, chunks ...string) []string {
	t.Helper()
	var b LineBuffer
	var lines []string
	emit := func(s string) error {
		lines = append(lines, s)
		return nil
	}
	for _, c := range chunks {
		if err := b.Feed([]byte(c), emit); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if err := b.Flush(emit); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return lines
}

func TestLineBuffer_Cases(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"single line", []string{"hello\n"}, []string{"hello"}},
		{"no trailing newline", []string{"a\nb"}, []string{"a", "b"}},
		{"many lines in one chunk", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}},
		{"line across chunks", []string{"hel", "lo", "\n"}, []string{"hello"}},
		{"crlf", []string{"a\r\nb\r\n"}, []string{"a", "b"}},
		{"crlf split across chunks", []string{"a\r", "\nb"}, []string{"a", "b"}},
		{"lone cr kept", []string{"a\rb\n"}, []string{"a\rb"}},
		{"empty lines", []string{"\n\n"}, []string{"", ""}},
		{"no terminator at all", []string{"abc"}, []string{"abc"}},
		{"nothing", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLineBuffer_ChunkWithoutTerminatorEmitsNothing(t *testing.T) {
	var b LineBuffer
	calls := 0
	if err := b.Feed([]byte("partial"), func(string) error { calls++; return nil }); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("emit called %d times, want 0", calls)
	}
	if string(b.Pending()) != "partial" {
		t.Errorf("Pending() = %q, want %q", b.Pending(), "partial")
	}
}

// Every way of cutting the input into two or three chunks must reconstruct
// the same bytes.
func TestLineBuffer_ChunkingIsInvisible(t *testing.T) {
	inputs := []string{
		"a\nb",
		"first line\nsecond\n\nfourth",
		"\n",
		"héllo wörld\nçà\n",
		"trailing\n",
	}
	for _, in := range inputs {
		whole := collect(t, in)
		for i := 0; i <= len(in); i++ {
			for j := i; j <= len(in); j++ {
				got := collect(t, in[:i], in[i:j], in[j:])
				if diff := cmp.Diff(whole, got); diff != "" {
					t.Fatalf("input %q split at %d,%d (-whole +split):\n%s", in, i, j, diff)
				}
				if rebuilt := rebuild(got, strings.HasSuffix(in, "\n")); rebuilt != in {
					t.Fatalf("input %q split at %d,%d rebuilt as %q", in, i, j, rebuilt)
				}
			}
		}
	}
}

func rebuild(lines []string, terminated bool) string {
	s := strings.Join(lines, "\n")
	if terminated && len(lines) > 0 {
		s += "\n"
	}
	return s
}

func TestLineBuffer_EmitErrorStopsEmitting(t *testing.T) {
	var b LineBuffer
	boom := errors.New("boom")
	var got []string
	err := b.Feed([]byte("a\nb\nc"), func(s string) error {
		got = append(got, s)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Feed error = %v, want boom", err)
	}
	if diff := cmp.Diff([]string{"a"}, got); diff != "" {
		t.Errorf("emitted lines (-want +got):\n%s", diff)
	}
	if string(b.Pending()) != "c" {
		t.Errorf("Pending() = %q, want %q", b.Pending(), "c")
	}
}
