package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/local/cropmargins/internal/geometry"
)

func TestConfine(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		root string
		path string
		want string
		ok   bool
	}{
		{"relative", root, "a.pdf", filepath.Join(root, "a.pdf"), true},
		{"nested new dir", root, "new/dir/a.pdf", filepath.Join(root, "new", "dir", "a.pdf"), true},
		{"absolute inside", root, filepath.Join(root, "sub", "a.pdf"), filepath.Join(root, "sub", "a.pdf"), true},
		{"dot segments stay inside", root, "sub/../b.pdf", filepath.Join(root, "b.pdf"), true},
		{"parent escape", root, "../a.pdf", "", false},
		{"absolute outside", root, "/etc/passwd", "", false},
		{"root itself", root, root, "", false},
		{"sibling prefix", root, root + "-evil/a.pdf", "", false},
		{"symlink out", root, "link/victim.txt", "", false},
		{"no root", "", "a.pdf", "", false},
		{"empty path", root, "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Confine("output", c.root, c.path)
			if !c.ok {
				if !geometry.IsValidationError(err) {
					t.Fatalf("Confine(%q) = %q, %v; want ValidationError", c.path, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Confine(%q): %v", c.path, err)
			}
			if got != c.want {
				t.Errorf("Confine(%q) = %q, want %q", c.path, got, c.want)
			}
		})
	}
}

func TestCroppedName(t *testing.T) {
	cases := map[string]string{
		"/docs/paper.pdf":                 "paper_cropped.pdf",
		"s3://bucket/dir/scan.pdf":        "scan_cropped.pdf",
		"https://example.com/x/a.pdf?v=2": "a_cropped.pdf",
		"file:///tmp/noext":               "noext_cropped.pdf",
	}
	for in, want := range cases {
		if got := CroppedName(in); got != want {
			t.Errorf("CroppedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsRemote(t *testing.T) {
	for ref, want := range map[string]bool{
		"s3://b/k":          true,
		"http://h/a.pdf":    true,
		"https://h/a.pdf":   true,
		"file:///tmp/a.pdf": false,
		"/tmp/a.pdf":        false,
	} {
		if got := IsRemote(ref); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", ref, got, want)
		}
	}
}
