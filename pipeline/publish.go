package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultResendURL = "https://api.resend.com/emails"

// ResendPublisher delivers the newsletter by email through the Resend API,
// attaching the generated news cards.
type ResendPublisher struct {
	APIKey string
	From   string
	To     string

	// URL overrides the API endpoint in tests.
	URL string

	Client *http.Client
	Logger *slog.Logger
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Publish sends the newsletter HTML to the configured recipient.
func (p *ResendPublisher) Publish(ctx context.Context, state State) error {
	url := p.URL
	if url == "" {
		url = defaultResendURL
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload := map[string]any{
		"from":    p.From,
		"to":      []string{p.To},
		"subject": "Your AI/ML Weekly Digest",
		"html":    state.NewsletterHTML,
	}
	if attachments := loadAttachments(state.ImagePaths, logger); len(attachments) > 0 {
		payload["attachments"] = attachments
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send newsletter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend returned %s", resp.Status)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.ID != "" {
		logger.Info("newsletter sent", "run_id", state.RunID, "email_id", result.ID, "to", p.To)
	}
	return nil
}

const (
	defaultLinkedInURL = "https://api.linkedin.com"

	// YYYYMM format, rolled forward periodically.
	linkedInAPIVersion = "202501"
)

// LinkedInPublisher posts the approved draft to the author's feed through
// the LinkedIn Posts API. When the state carries generated news cards the
// first one is uploaded and attached to the post (initialize upload, PUT
// the binary, then reference the returned image URN).
type LinkedInPublisher struct {
	AccessToken string

	// AuthorURN identifies the posting profile, e.g. "urn:li:person:abc".
	AuthorURN string

	// URL overrides the API base in tests.
	URL string

	Client *http.Client
	Logger *slog.Logger
}

// Publish posts the LinkedIn draft, with the first news card attached when
// one was generated.
func (p *LinkedInPublisher) Publish(ctx context.Context, state State) error {
	if state.LinkedInDraft == "" {
		return nil
	}
	base := p.URL
	if base == "" {
		base = defaultLinkedInURL
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload := map[string]any{
		"author":     p.AuthorURN,
		"commentary": state.LinkedInDraft,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		"lifecycleState": "PUBLISHED",
	}
	if len(state.ImagePaths) > 0 {
		urn, err := p.uploadImage(ctx, client, base, state.ImagePaths[0])
		if err != nil {
			logger.Warn("posting without image", "path", state.ImagePaths[0], "error", err)
		} else {
			payload["content"] = map[string]any{
				"media": map[string]any{
					"title": "AI/ML Weekly Digest",
					"id":    urn,
				},
			}
		}
	}

	resp, err := p.postJSON(ctx, client, base+"/rest/posts", payload)
	if err != nil {
		return fmt.Errorf("publish linkedin post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("linkedin returned %s", resp.Status)
	}

	postID := resp.Header.Get("X-Restli-Id")
	logger.Info("linkedin post published",
		"run_id", state.RunID, "post_id", postID, "chars", len(state.LinkedInDraft))
	return nil
}

// uploadImage runs the two-step upload and returns the image URN.
func (p *LinkedInPublisher) uploadImage(ctx context.Context, client *http.Client, base, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	initResp, err := p.postJSON(ctx, client, base+"/rest/images?action=initializeUpload", map[string]any{
		"initializeUploadRequest": map[string]any{"owner": p.AuthorURN},
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	defer initResp.Body.Close()
	if initResp.StatusCode < 200 || initResp.StatusCode >= 300 {
		return "", fmt.Errorf("initialize upload returned %s", initResp.Status)
	}
	var init struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	if err := json.NewDecoder(initResp.Body).Decode(&init); err != nil {
		return "", fmt.Errorf("decode upload grant: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, init.Value.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	putResp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return "", fmt.Errorf("upload image returned %s", putResp.Status)
	}
	return init.Value.Image, nil
}

func (p *LinkedInPublisher) postJSON(ctx context.Context, client *http.Client, url string, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", linkedInAPIVersion)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	return client.Do(req)
}

// MultiPublisher fans the content out to several destinations. Every
// publisher is attempted; failures are joined so one broken channel does
// not silence the rest.
type MultiPublisher []Publisher

// Publish delivers through each wrapped publisher in order.
func (m MultiPublisher) Publish(ctx context.Context, state State) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadAttachments reads the generated card files; missing files are skipped
// rather than failing the send.
func loadAttachments(paths []string, logger *slog.Logger) []resendAttachment {
	var attachments []resendAttachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping attachment", "path", path, "error", err)
			continue
		}
		attachments = append(attachments, resendAttachment{
			Filename: filepath.Base(path),
			Content:  base64.StdEncoding.EncodeToString(data),
		})
	}
	return attachments
}
