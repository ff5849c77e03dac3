// Package rewrite finds references to a vault asset in note text and points
// them at a new target.
//
// Two syntaxes are recognized:
//
//	![alt](target)            inline image link, optionally ![alt](<target> "title")
//	![[target]] ![[target|alt]]  embed, optionally ![[target#fragment|alt]]
//
// Inline destinations may contain one level of balanced parentheses, as in
// image (1).png, or any characters inside <angle brackets>.
//
// A reference matches when its target, raw or percent-decoded, equals the
// asset's vault path, file name or base name. Matching is case-sensitive.
package rewrite

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	inlinePattern = regexp.MustCompile(`!\[([^\]]*)\]\(((?:<[^>\n]*>|[^()\n]|\([^()\n]*\))*)\)`)
	embedPattern  = regexp.MustCompile(`!\[\[([^\]|\n]+)(\|[^\]\n]*)?\]\]`)
)

// Reference identifies the asset whose occurrences should be found.
type Reference struct {
	Path string
}

// NewReference creates a Reference for a vault-relative path.
func NewReference(p string) Reference {
	return Reference{Path: strings.ReplaceAll(p, "\\", "/")}
}

// names returns the strings that may denote the asset in a link target.
func (r Reference) names() []string {
	name := path.Base(r.Path)
	base := strings.TrimSuffix(name, path.Ext(name))

	out := []string{r.Path}
	for _, n := range []string{name, base} {
		if n != "" && n != "." && n != r.Path {
			out = append(out, n)
		}
	}
	return out
}

// literals returns the raw and percent-encoded spellings of the path and file name.
func (r Reference) literals() []string {
	name := path.Base(r.Path)
	seen := make(map[string]bool)
	var out []string
	for _, s := range []string{r.Path, name, encodePath(r.Path), encodePath(name), strings.ReplaceAll(r.Path, " ", "%20")} {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (r Reference) matches(target string) bool {
	target = strings.TrimPrefix(strings.TrimSpace(target), "./")
	decoded := target
	if d, err := url.PathUnescape(target); err == nil {
		decoded = d
	}
	for _, n := range r.names() {
		if target == n || decoded == n {
			return true
		}
	}
	return false
}

// Result is the outcome of Rewrite.
type Result struct {
	Text    string
	Changed bool
	Count   int
}

// Rewrite replaces every reference to ref in text with target, keeping alt
// text and link titles. When nothing matches, the original text is returned
// with Changed false.
func Rewrite(text string, ref Reference, target string) Result {
	count := 0

	out := inlinePattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlinePattern.FindStringSubmatch(m)
		alt, inner := sub[1], sub[2]
		dest, rest, bracketed := splitInlineTarget(inner)
		if !ref.matches(dest) {
			return m
		}
		count++
		newDest := strings.ReplaceAll(target, " ", "%20")
		if bracketed {
			newDest = "<" + target + ">"
		}
		return "![" + alt + "](" + newDest + rest + ")"
	})

	out = embedPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := embedPattern.FindStringSubmatch(m)
		dest, fragment := splitFragment(sub[1])
		if !ref.matches(dest) {
			return m
		}
		count++
		return "![[" + target + fragment + sub[2] + "]]"
	})

	if count == 0 {
		return Result{Text: text}
	}
	return Result{Text: out, Changed: true, Count: count}
}

// IsReferenced reports whether text refers to the asset through a link,
// an embed, a [[basename]] wiki link, or a literal occurrence of its path
// or file name in raw or percent-encoded form.
func IsReferenced(text string, ref Reference) bool {
	if text == "" || ref.Path == "" {
		return false
	}
	for _, lit := range ref.literals() {
		if strings.Contains(text, lit) {
			return true
		}
	}
	name := path.Base(ref.Path)
	base := strings.TrimSuffix(name, path.Ext(name))
	if base != "" && (strings.Contains(text, "[["+base+"]]") || strings.Contains(text, "[["+base+"|")) {
		return true
	}
	for _, m := range inlinePattern.FindAllStringSubmatch(text, -1) {
		if dest, _, _ := splitInlineTarget(m[2]); ref.matches(dest) {
			return true
		}
	}
	for _, m := range embedPattern.FindAllStringSubmatch(text, -1) {
		if dest, _ := splitFragment(m[1]); ref.matches(dest) {
			return true
		}
	}
	return false
}

// TextReader is the read side of an editor.
type TextReader interface {
	ActiveText() (string, bool)
}

// TextWriter is the optional write side of an editor.
type TextWriter interface {
	SetActiveText(text string) error
}

// Apply rewrites references to ref in the editor's active document.
// A missing document or a read-only editor is a silent no-op.
// It reports whether the document was modified.
func Apply(editor TextReader, ref Reference, target string) (bool, error) {
	if editor == nil {
		return false, nil
	}
	writer, ok := editor.(TextWriter)
	if !ok {
		return false, nil
	}
	text, ok := editor.ActiveText()
	if !ok {
		return false, nil
	}
	res := Rewrite(text, ref, target)
	if !res.Changed {
		return false, nil
	}
	if err := writer.SetActiveText(res.Text); err != nil {
		return false, err
	}
	return true, nil
}

// splitInlineTarget separates the destination of an inline link from an
// optional title, handling the <angle bracket> form.
func splitInlineTarget(inner string) (dest, rest string, bracketed bool) {
	trimmed := strings.TrimLeft(inner, " ")
	if strings.HasPrefix(trimmed, "<") {
		if end := strings.Index(trimmed, ">"); end > 0 {
			return trimmed[1:end], trimmed[end+1:], true
		}
	}
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		return trimmed[:i], trimmed[i:], false
	}
	return trimmed, "", false
}

// splitFragment separates an embed target from its #heading or #^block suffix.
func splitFragment(target string) (dest, fragment string) {
	if i := strings.IndexByte(target, '#'); i > 0 {
		return target[:i], target[i:]
	}
	return target, ""
}

func encodePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
