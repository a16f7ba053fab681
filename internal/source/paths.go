package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/cropmargins/internal/geometry"
)

// IsRemote reports whether ref names an s3 or http(s) object.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// LocalPath strips an optional file:// scheme.
func LocalPath(ref string) string { return strings.TrimPrefix(ref, "file://") }

// Confine resolves p inside root and returns the absolute result. Relative
// paths are taken from root. Paths that leave root, directly or through a
// symlink, and any path when root is empty, are a ValidationError on field.
func Confine(field, root, p string) (string, error) {
	if root == "" {
		return "", &geometry.ValidationError{Field: field, Message: "local paths are not accepted"}
	}
	if p == "" {
		return "", &geometry.ValidationError{Field: field, Message: "empty path"}
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)

	if !inside(resolveExisting(rootAbs), resolveExisting(target)) {
		return "", &geometry.ValidationError{Field: field, Message: fmt.Sprintf("%s is outside %s", p, root)}
	}
	return target, nil
}

func inside(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting follows symlinks in the longest existing prefix of p and
// appends the part that does not exist yet.
func resolveExisting(p string) string {
	rest := ""
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			if real, err := filepath.EvalSymlinks(cur); err == nil {
				return filepath.Join(real, rest)
			}
			return p
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// CroppedName is the file name given to the cropped copy of input.
func CroppedName(input string) string {
	base := filepath.Base(input)
	if IsRemote(input) {
		if i := strings.LastIndex(input, "/"); i >= 0 {
			base = input[i+1:]
		}
	}
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + CroppedSuffix
	if ext == "" {
		ext = ".pdf"
	}
	return name + ext
}
