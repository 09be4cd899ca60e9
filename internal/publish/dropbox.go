// Package publish persists the rendered playlist to Dropbox with overwrite
// semantics, so the shared download link stays stable across runs. Publish
// failures never invalidate the locally written artifact; the pipeline logs
// and moves on.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3uforge/m3u-forge/internal/httpclient"
)

// ErrNotConfigured is returned when the Dropbox credentials are absent.
// Callers treat it as "publishing disabled", not a failure.
var ErrNotConfigured = errors.New("publish: dropbox credentials not configured")

// Publisher ships a rendered artifact to a named destination and returns a
// stable retrieval link ("" when the backend offers none).
type Publisher interface {
	Publish(ctx context.Context, data []byte, dest string) (link string, err error)
}

// Dropbox publishes via the Dropbox HTTP API using a long-lived refresh
// token. Endpoints are fields so tests can point them at a fake.
type Dropbox struct {
	RefreshToken string
	AppKey       string
	AppSecret    string

	// Client may be nil to use a 60s default.
	Client *http.Client

	// Endpoint overrides; empty = production Dropbox.
	AuthURL    string // default https://api.dropbox.com
	APIURL     string // default https://api.dropboxapi.com
	ContentURL string // default https://content.dropboxapi.com
}

func (d *Dropbox) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return httpclient.WithTimeout(60 * time.Second)
}

func (d *Dropbox) authURL() string {
	if d.AuthURL != "" {
		return d.AuthURL
	}
	return "https://api.dropbox.com"
}

func (d *Dropbox) apiURL() string {
	if d.APIURL != "" {
		return d.APIURL
	}
	return "https://api.dropboxapi.com"
}

func (d *Dropbox) contentURL() string {
	if d.ContentURL != "" {
		return d.ContentURL
	}
	return "https://content.dropboxapi.com"
}

// Configured reports whether all credentials are present.
func (d *Dropbox) Configured() bool {
	return d.RefreshToken != "" && d.AppKey != "" && d.AppSecret != ""
}

// Publish uploads data to dest (e.g. "/playlist.m3u") in overwrite mode and
// returns a direct-download shared link for it.
func (d *Dropbox) Publish(ctx context.Context, data []byte, dest string) (string, error) {
	if !d.Configured() {
		return "", ErrNotConfigured
	}
	token, err := d.accessToken(ctx)
	if err != nil {
		return "", err
	}
	if err := d.upload(ctx, token, data, dest); err != nil {
		return "", err
	}
	return d.ensureSharedLink(ctx, token, dest)
}

// accessToken exchanges the refresh token for a short-lived access token.
func (d *Dropbox) accessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {d.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.authURL()+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.AppKey, d.AppSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := d.doJSON(req, &out); err != nil {
		return "", fmt.Errorf("publish: token exchange: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("publish: token exchange returned no access_token")
	}
	return out.AccessToken, nil
}

func (d *Dropbox) upload(ctx context.Context, token string, data []byte, dest string) error {
	arg, _ := json.Marshal(map[string]any{
		"path": dest,
		"mode": "overwrite",
		"mute": false,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL()+"/2/files/upload", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("publish: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("publish: upload: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// ensureSharedLink reuses an existing shared link for dest, creating one if
// none exists, and rewrites it to direct-download form.
func (d *Dropbox) ensureSharedLink(ctx context.Context, token, dest string) (string, error) {
	var list struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	if err := d.postJSON(ctx, token, "/2/sharing/list_shared_links", map[string]any{"path": dest}, &list); err != nil {
		return "", err
	}
	if len(list.Links) > 0 {
		return directLink(list.Links[0].URL), nil
	}

	var created struct {
		URL string `json:"url"`
	}
	err := d.postJSON(ctx, token, "/2/sharing/create_shared_link_with_settings", map[string]any{
		"path":     dest,
		"settings": map[string]any{"requested_visibility": "public"},
	}, &created)
	if err != nil {
		return "", err
	}
	if created.URL == "" {
		return "", errors.New("publish: shared link creation returned no url")
	}
	return directLink(created.URL), nil
}

func (d *Dropbox) postJSON(ctx context.Context, token, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL()+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if err := d.doJSON(req, out); err != nil {
		return fmt.Errorf("publish: %s: %w", path, err)
	}
	return nil
}

func (d *Dropbox) doJSON(req *http.Request, out any) error {
	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

// directLink turns a Dropbox share URL into its direct-download form.
func directLink(u string) string {
	return strings.Replace(u, "?dl=0", "?dl=1", 1)
}
