package intake

import (
	"fmt"
	"path"

	"attach-go/internal/pathsan"
)

const (
	collisionStampLayout = "20060102150405"
	maxCollisionAttempts = 100
)

// copyLocally places the attempt's content in the local-copy folder unless
// identical content is already there.
func (p *Pipeline) copyLocally(a *attempt) {
	raw := a.settings.LocalCopyFolder
	folder, err := pathsan.Sanitize(raw)
	if err != nil {
		folder = pathsan.Lenient(raw)
		p.logger.Warn("local copy folder is not a clean relative path", "folder", raw, "using", folder, "error", err)
	}
	name := a.file.Name()

	existing, err := p.findDuplicate(folder, a)
	if err != nil {
		p.copyFailed(a, err)
		return
	}
	if existing != "" {
		if existing == a.file.Path {
			a.inPlace = true
			a.copySkip = ReasonAlreadyLocal
			p.logger.Debug("file already in local copy folder", "path", a.file.Path)
			return
		}
		a.localPath = existing
		p.logger.Info("identical content already in local copy folder", "path", a.file.Path, "existing", existing)
		a.note("%s is already stored as %s", name, existing)
		return
	}

	dest, err := p.destination(folder, a.file)
	if err != nil {
		p.copyFailed(a, err)
		return
	}

	p.state.MarkCreated(dest)
	if folder != "" {
		if err := p.vault.CreateFolder(folder); err != nil {
			p.copyFailed(a, fmt.Errorf("creating folder %s: %w", folder, err))
			return
		}
	}
	if err := p.vault.CreateBinary(dest, a.data); err != nil {
		p.copyFailed(a, fmt.Errorf("writing %s: %w", dest, err))
		return
	}

	a.localPath = dest
	p.logger.Info("copied locally", "path", a.file.Path, "dest", dest)
	a.note("Copied %s to %s", name, dest)
}

func (p *Pipeline) copyFailed(a *attempt, err error) {
	a.copyErr = err
	p.logger.Error("local copy failed", "path", a.file.Path, "error", err)
	a.note("Local copy of %s failed: %v", a.file.Name(), err)
}

// findDuplicate returns the path of a file in folder whose content hash
// matches the attempt, preferring a file other than the source itself.
func (p *Pipeline) findDuplicate(folder string, a *attempt) (string, error) {
	files, err := p.vault.ListFolder(folder)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", displayFolder(folder), err)
	}

	self := ""
	for _, f := range files {
		candidate := NormalizePath(f.Path)
		if f.Size != a.size() {
			continue
		}
		if candidate == a.file.Path {
			self = candidate
			continue
		}
		data, err := p.vault.ReadBinary(candidate)
		if err != nil {
			p.logger.Warn("reading possible duplicate", "path", candidate, "error", err)
			continue
		}
		hash, err := p.hasher.Hash(data)
		if err != nil {
			p.logger.Warn("hashing possible duplicate", "path", candidate, "error", err)
			continue
		}
		if hash == a.hash {
			return candidate, nil
		}
	}
	return self, nil
}

// destination returns folder/name, or a timestamped variant when that name
// is taken by different content.
func (p *Pipeline) destination(folder string, file *File) (string, error) {
	dest := joinVaultPath(folder, file.Name())
	taken, err := p.vault.Exists(dest)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", dest, err)
	}
	if !taken {
		return dest, nil
	}

	stamp := p.clock.Now().Format(collisionStampLayout)
	ext := path.Ext(file.Name())
	for i := 0; i < maxCollisionAttempts; i++ {
		name := fmt.Sprintf("%s-%s%s", file.Basename(), stamp, ext)
		if i > 0 {
			name = fmt.Sprintf("%s-%s-%d%s", file.Basename(), stamp, i, ext)
		}
		candidate := joinVaultPath(folder, name)
		taken, err := p.vault.Exists(candidate)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", file.Name(), displayFolder(folder))
}

// deleteSource removes the original file once its content is safe elsewhere
// and the active document no longer points at it.
func (p *Pipeline) deleteSource(a *attempt, copyEnabled bool) {
	switch {
	case !a.settings.DeleteSource, a.url == "", a.inPlace:
		return
	case copyEnabled && a.localPath == "":
		return
	case a.localPath == a.file.Path:
		return
	case !a.rewritten:
		p.logger.Warn("keeping source file, no reference was rewritten", "path", a.file.Path)
		return
	}

	if err := p.vault.Delete(a.file.Path); err != nil {
		p.logger.Warn("deleting source file", "path", a.file.Path, "error", err)
		a.note("Could not delete %s: %v", a.file.Name(), err)
		return
	}
	p.logger.Info("source file deleted", "path", a.file.Path)
}

func joinVaultPath(folder, name string) string {
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

func displayFolder(folder string) string {
	if folder == "" {
		return "vault root"
	}
	return folder
}
