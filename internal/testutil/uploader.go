package testutil

import (
	"context"
	"path"
	"strconv"
	"sync"

	"attach-go/internal/intake"
)

// FakeUploader is a scriptable intake.Uploader.
// By default it returns https://media.example/<n>/<filename> for the n-th call.
type FakeUploader struct {
	mu    sync.Mutex
	calls int
	names []string

	// Err, when set, is returned from every Upload call.
	Err error
	// URL overrides the returned URL.
	URL func(data []byte, filename string) string
	// Block, when set, is waited on before Upload returns.
	Block chan struct{}
	// OnUpload runs inside Upload before it returns.
	OnUpload func()
}

var _ intake.Uploader = (*FakeUploader)(nil)

func NewFakeUploader() *FakeUploader {
	return &FakeUploader{}
}

func (u *FakeUploader) Upload(ctx context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	u.mu.Lock()
	u.calls++
	n := u.calls
	u.names = append(u.names, filename)
	u.mu.Unlock()

	if u.OnUpload != nil {
		u.OnUpload()
	}
	if u.Block != nil {
		select {
		case <-u.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if u.Err != nil {
		return nil, u.Err
	}

	url := "https://media.example/" + strconv.Itoa(n) + "/" + path.Base(filename)
	if u.URL != nil {
		url = u.URL(data, filename)
	}
	return &intake.UploadResult{URL: url, PublicID: "asset-" + strconv.Itoa(n)}, nil
}

func (u *FakeUploader) Tag() string { return "fake" }

// Calls returns the number of Upload invocations.
func (u *FakeUploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// Filenames returns the filenames passed to Upload in order.
func (u *FakeUploader) Filenames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.names...)
}

// FakePresetCreator is a scriptable intake.PresetCreator.
type FakePresetCreator struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned from every call.
	Err error
	// Name overrides the name reported as created.
	Name string
}

var _ intake.PresetCreator = (*FakePresetCreator)(nil)

func (c *FakePresetCreator) CreatePreset(_ context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	if c.Err != nil {
		return "", c.Err
	}
	if c.Name != "" {
		return c.Name, nil
	}
	return name, nil
}

// Calls returns the preset names requested so far.
func (c *FakePresetCreator) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
