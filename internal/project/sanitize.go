package project

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// illegalSegmentChars are stripped from each path segment. Forward slashes
// are the separator and are handled separately.
const illegalSegmentChars = `<>:"|?*\`

// SanitizePath normalizes a virtual file path: trims whitespace, converts
// backslashes to forward slashes, strips a leading slash, removes control
// characters, collapses duplicate slashes, and strips illegal characters
// from each segment. Deterministic and total; an empty result means the
// file should be dropped.
func SanitizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")

	p = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, p)

	segments := strings.Split(p, "/")
	clean := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.Map(func(r rune) rune {
			if strings.ContainsRune(illegalSegmentChars, r) {
				return -1
			}
			return r
		}, seg)
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		clean = append(clean, seg)
	}
	return strings.Join(clean, "/")
}

// SanitizeFileMap applies SanitizePath to every key, dropping files whose
// path sanitizes to empty. Later entries win on collision.
func SanitizeFileMap(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for p, content := range files {
		clean := SanitizePath(p)
		if clean == "" {
			continue
		}
		out[clean] = content
	}
	return out
}

// Fingerprint computes a content hash of a file map, used to detect no-op
// remounts. Paths are visited in sorted order so the hash is stable.
func Fingerprint(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TreeNode is one node of the nested directory tree built from a flat file
// map before mounting.
type TreeNode struct {
	Name     string
	Content  string
	IsDir    bool
	Children map[string]*TreeNode
}

// BuildTree converts a flat sanitized {path: content} map into a nested
// directory tree, creating intermediate directory nodes as needed.
func BuildTree(files map[string]string) *TreeNode {
	root := &TreeNode{Name: "", IsDir: true, Children: map[string]*TreeNode{}}
	for p, content := range files {
		segments := strings.Split(p, "/")
		node := root
		for i, seg := range segments {
			last := i == len(segments)-1
			child, ok := node.Children[seg]
			if !ok {
				child = &TreeNode{Name: seg, IsDir: !last, Children: map[string]*TreeNode{}}
				node.Children[seg] = child
			}
			if last {
				child.Content = content
				child.IsDir = false
			}
			node = child
		}
	}
	return root
}
