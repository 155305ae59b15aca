package engine

import (
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"amd64", ArchX86_64},
		{"X86_64", ArchX86_64},
		{"arm64", ArchARM64},
		{"rv64", ArchRiscv64},
	}
	for _, tt := range tests {
		got, err := ParseArch(tt.in)
		if err != nil {
			t.Fatalf("ParseArch(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseArch(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
	if _, err := ParseArch("mips"); err == nil {
		t.Fatalf("Expected an error for an unsupported architecture")
	}
}

func TestHostPlatform(t *testing.T) {
	p := Host()
	if runtime.GOARCH == "amd64" && p.Arch != ArchX86_64 {
		t.Fatalf("Expected x86_64 host, got %s", p)
	}
	if runtime.GOOS == "linux" && p.OS != OSLinux {
		t.Fatalf("Expected linux host, got %s", p)
	}
}

func TestFindSimilar(t *testing.T) {
	got := FindSimilar("prnt", []string{"print", "println", "sprint", "add"}, 2)
	want := []string{"print", "sprint"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FindSimilar mismatch (-want +got):\n%s", diff)
	}
	if got := FindSimilar("print", []string{"print"}, 3); len(got) != 0 {
		t.Fatalf("Expected an exact match to be skipped, got %v", got)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Fatalf("levenshteinDistance(%q, %q): expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestCodePageLifecycle(t *testing.T) {
	if !ExecMemSupported {
		t.Skip("no executable memory on this platform")
	}
	page, err := AllocateCodePage(3)
	if err != nil {
		t.Fatalf("AllocateCodePage failed: %v", err)
	}
	if page.Address() == 0 {
		t.Fatalf("Expected a mapped address")
	}
	if err := page.CopyCode([]byte{0x90, 0x90, 0xC3}); err != nil {
		t.Fatalf("CopyCode failed: %v", err)
	}
	if err := page.CopyCode([]byte{0xC3}); err == nil {
		t.Fatalf("Expected a second CopyCode to fail")
	}
	if err := page.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := page.Free(); err != nil {
		t.Fatalf("Expected a second Free to be a no-op, got %v", err)
	}
}
