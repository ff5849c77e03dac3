package intake

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"attach-go/internal/rewrite"
)

var errNotReferenced = errors.New("not referenced in active document")

// waitForReference polls the active document until it refers to file or the
// retry budget runs out.
func (p *Pipeline) waitForReference(ctx context.Context, file *File) bool {
	ref := rewrite.NewReference(file.Path)

	var b backoff.BackOff = backoff.NewConstantBackOff(p.opts.ReferenceWaitInterval)
	b = backoff.WithMaxRetries(b, uint64(p.opts.ReferenceWaitRetries))

	err := backoff.Retry(func() error {
		text, ok := p.editor.ActiveText()
		if ok && rewrite.IsReferenced(text, ref) {
			return nil
		}
		return errNotReferenced
	}, backoff.WithContext(b, ctx))
	return err == nil
}

// replaceReferences points the active document at the asset's final location.
// It reports whether the document was modified.
func (p *Pipeline) replaceReferences(a *attempt) bool {
	switch {
	case a.url != "":
		changed := p.applyRewrite(a.file.Path, a.url)
		if a.localPath != "" && p.applyRewrite(a.localPath, a.url) {
			changed = true
		}
		return changed
	case a.localPath != "":
		return p.applyRewrite(a.file.Path, a.localPath)
	}
	return false
}

func (p *Pipeline) applyRewrite(from, to string) bool {
	changed, err := rewrite.Apply(p.editor, rewrite.NewReference(from), to)
	if err != nil {
		p.logger.Warn("rewriting references", "from", from, "to", to, "error", err)
		return false
	}
	if changed {
		p.logger.Debug("references rewritten", "from", from, "to", to)
	}
	return changed
}
