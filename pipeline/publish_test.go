package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResendPublisher(t *testing.T) {
	cardPath := filepath.Join(t.TempDir(), "card_run-9_0.html")
	require.NoError(t, os.WriteFile(cardPath, []byte("<html>card</html>"), 0o644))

	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]any{"id": "email-123"})
	}))
	defer srv.Close()

	p := &ResendPublisher{
		APIKey: "re-test",
		From:   "news@example.com",
		To:     "you@example.com",
		URL:    srv.URL,
		Logger: discardLogger(),
	}
	state := State{
		RunID:          "run-9",
		NewsletterHTML: "<html>digest</html>",
		ImagePaths:     []string{cardPath, filepath.Join(t.TempDir(), "missing.html")},
	}

	require.NoError(t, p.Publish(context.Background(), state))

	assert.Equal(t, "news@example.com", received["from"])
	assert.Equal(t, []any{"you@example.com"}, received["to"])
	assert.Equal(t, "<html>digest</html>", received["html"])

	attachments, ok := received["attachments"].([]any)
	require.True(t, ok, "attachments missing")
	// The unreadable path is skipped, not fatal.
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "card_run-9_0.html", att["filename"])
	decoded, err := base64.StdEncoding.DecodeString(att["content"].(string))
	require.NoError(t, err)
	assert.Equal(t, "<html>card</html>", string(decoded))
}

func TestResendPublisher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := &ResendPublisher{APIKey: "bad", From: "a@b.c", To: "d@e.f", URL: srv.URL, Logger: discardLogger()}

	err := p.Publish(context.Background(), State{NewsletterHTML: "<html></html>"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "resend returned")
}

func TestLinkedInPublisher_TextPost(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/posts", r.URL.Path)
		assert.Equal(t, "Bearer li-test", r.Header.Get("Authorization"))
		assert.Equal(t, "202501", r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("X-Restli-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := &LinkedInPublisher{
		AccessToken: "li-test",
		AuthorURN:   "urn:li:person:abc",
		URL:         srv.URL,
		Logger:      discardLogger(),
	}

	require.NoError(t, p.Publish(context.Background(), State{
		RunID:         "run-9",
		LinkedInDraft: "This week in AI...",
	}))

	assert.Equal(t, "urn:li:person:abc", received["author"])
	assert.Equal(t, "This week in AI...", received["commentary"])
	assert.Equal(t, "PUBLIC", received["visibility"])
	assert.Equal(t, "PUBLISHED", received["lifecycleState"])
	dist := received["distribution"].(map[string]any)
	assert.Equal(t, "MAIN_FEED", dist["feedDistribution"])
	assert.NotContains(t, received, "content")
}

func TestLinkedInPublisher_ImagePost(t *testing.T) {
	cardPath := filepath.Join(t.TempDir(), "card_run-9_0.html")
	require.NoError(t, os.WriteFile(cardPath, []byte("<html>card</html>"), 0o644))

	var uploaded []byte
	var post map[string]any
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/rest/images", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "initializeUpload", r.URL.Query().Get("action"))
		var init map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&init))
		owner := init["initializeUploadRequest"].(map[string]any)["owner"]
		assert.Equal(t, "urn:li:person:abc", owner)
		json.NewEncoder(w).Encode(map[string]any{"value": map[string]any{
			"uploadUrl": srv.URL + "/upload",
			"image":     "urn:li:image:7",
		}})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var err error
		uploaded, err = io.ReadAll(r.Body)
		require.NoError(t, err)
	})
	mux.HandleFunc("/rest/posts", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&post))
		w.Header().Set("X-Restli-Id", "urn:li:share:43")
		w.WriteHeader(http.StatusCreated)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	p := &LinkedInPublisher{
		AccessToken: "li-test",
		AuthorURN:   "urn:li:person:abc",
		URL:         srv.URL,
		Logger:      discardLogger(),
	}

	require.NoError(t, p.Publish(context.Background(), State{
		RunID:         "run-9",
		LinkedInDraft: "This week in AI...",
		ImagePaths:    []string{cardPath},
	}))

	assert.Equal(t, "<html>card</html>", string(uploaded))
	media := post["content"].(map[string]any)["media"].(map[string]any)
	assert.Equal(t, "urn:li:image:7", media["id"])
}

func TestLinkedInPublisher_UploadFailurePostsWithoutImage(t *testing.T) {
	var post map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/images", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	})
	mux.HandleFunc("/rest/posts", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&post))
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := &LinkedInPublisher{
		AccessToken: "li-test",
		AuthorURN:   "urn:li:person:abc",
		URL:         srv.URL,
		Logger:      discardLogger(),
	}

	require.NoError(t, p.Publish(context.Background(), State{
		LinkedInDraft: "This week in AI...",
		ImagePaths:    []string{filepath.Join(t.TempDir(), "missing.html")},
	}))
	assert.NotContains(t, post, "content")
}

func TestLinkedInPublisher_SkipsWithoutDraft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a draft")
	}))
	defer srv.Close()

	p := &LinkedInPublisher{AccessToken: "li-test", AuthorURN: "urn:li:person:abc", URL: srv.URL}
	require.NoError(t, p.Publish(context.Background(), State{}))
}

func TestMultiPublisher_AttemptsAllChannels(t *testing.T) {
	dir := t.TempDir()
	failing := &failingPublisher{}
	m := MultiPublisher{nil, failing, &FilePublisher{Dir: dir}}

	err := m.Publish(context.Background(), State{
		RunID:          "run-9",
		NewsletterHTML: "<html>digest</html>",
		LinkedInDraft:  "post",
	})

	// The broken channel surfaces, but the file copy still landed.
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "newsletter_run-9.html"))
	assert.FileExists(t, filepath.Join(dir, "linkedin_run-9.txt"))
}
