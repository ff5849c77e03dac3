package uploader

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"attach-go/internal/intake"
)

// DefaultCloudinaryBaseURL is the Cloudinary API root.
const DefaultCloudinaryBaseURL = "https://api.cloudinary.com"

const maxResponseBytes = 1 << 20

// Cloudinary uploads images to a Cloudinary account. Credentials are read
// from the settings store on every call, so a provisioned preset takes
// effect without rebuilding the uploader.
type Cloudinary struct {
	baseURL  string
	client   *http.Client
	settings intake.SettingsStore
	clock    intake.Clock
}

var (
	_ intake.Uploader      = (*Cloudinary)(nil)
	_ intake.PresetCreator = (*Cloudinary)(nil)
)

// NewCloudinary creates a Cloudinary uploader. An empty baseURL selects the public API.
func NewCloudinary(baseURL string, timeout time.Duration, settings intake.SettingsStore, clock intake.Clock) *Cloudinary {
	if baseURL == "" {
		baseURL = DefaultCloudinaryBaseURL
	}
	if clock == nil {
		clock = intake.RealClock{}
	}
	return &Cloudinary{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		settings: settings,
		clock:    clock,
	}
}

func (c *Cloudinary) Tag() string { return "cloudinary" }

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Name      string `json:"name"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends data as a signed upload when an API key pair is configured,
// otherwise as an unsigned upload through the configured preset.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	s := c.settings.Settings()
	if s.AccountID == "" {
		return nil, fmt.Errorf("cloudinary upload: account id not set")
	}

	params := map[string]string{}
	if s.UploadPreset != "" {
		params["upload_preset"] = s.UploadPreset
	}
	switch {
	case s.HasSignedCredentials():
		params["timestamp"] = strconv.FormatInt(c.clock.Now().Unix(), 10)
		params["signature"] = Sign(params, s.APISecret)
		params["api_key"] = s.APIKey
	case s.UploadPreset == "":
		return nil, intake.ErrConfigurationMissing
	}

	body, contentType, err := multipartBody(params, data, filename)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, url.PathEscape(s.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var resp cloudinaryResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	u := resp.SecureURL
	if u == "" {
		u = resp.URL
	}
	if u == "" {
		return nil, fmt.Errorf("cloudinary upload: response carried no url")
	}
	return &intake.UploadResult{URL: u, PublicID: resp.PublicID}, nil
}

// CreatePreset creates an unsigned upload preset using basic authentication
// with the configured API key pair.
func (c *Cloudinary) CreatePreset(ctx context.Context, name string) (string, error) {
	s := c.settings.Settings()
	if s.AccountID == "" {
		return "", fmt.Errorf("creating preset: account id not set")
	}
	if !s.HasSignedCredentials() {
		return "", fmt.Errorf("creating preset: %w", intake.ErrConfigurationMissing)
	}

	form := url.Values{}
	form.Set("name", name)
	form.Set("unsigned", "true")

	endpoint := fmt.Sprintf("%s/v1_1/%s/upload_presets", c.baseURL, url.PathEscape(s.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building preset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.APIKey, s.APISecret)

	var resp cloudinaryResponse
	if err := c.do(req, &resp); err != nil {
		var rejected *intake.UploadRejectedError
		if errors.As(err, &rejected) && strings.Contains(strings.ToLower(rejected.Message), "already exists") {
			return "", fmt.Errorf("%w: %s", intake.ErrPresetExists, name)
		}
		return "", err
	}
	if resp.Name != "" {
		return resp.Name, nil
	}
	return name, nil
}

// do sends req and decodes a JSON response into out. Non-2xx responses
// become *intake.UploadRejectedError carrying the remote message.
func (c *Cloudinary) do(req *http.Request, out *cloudinaryResponse) error {
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading cloudinary response: %w", err)
	}

	decodeErr := json.Unmarshal(raw, out)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return intake.NewUploadRejectedError(res.StatusCode, msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding cloudinary response: %w", decodeErr)
	}
	return nil
}

// Sign computes the Cloudinary request signature: the SHA-1 hex digest of
// the sorted key=value pairs joined by '&', followed by the API secret.
// Empty values and the file, api_key, resource_type and cloud_name
// parameters are excluded.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func multipartBody(params map[string]string, data []byte, filename string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, params[k]); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
