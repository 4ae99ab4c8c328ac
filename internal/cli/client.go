package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/models"
)

// Client talks to a running leakscan server. The bleve index admits a single
// writer, so commands use it whenever a server owns the data directory.
type Client struct {
	baseURL string
	owner   string
	http    *http.Client
}

// NewClient returns a client for baseURL acting as owner ("" for the shared corpus).
func NewClient(baseURL, owner string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		http:    &http.Client{},
	}
}

// Ping waits briefly for the server's health endpoint to answer.
func (c *Client) Ping(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2), ctx)
	return backoff.Retry(func() error {
		resp, err := c.do(ctx, http.MethodGet, "/health", nil, "")
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}, b)
}

// Search fetches one page of results for q.
func (c *Client) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchPage, error) {
	v := url.Values{}
	v.Set("domain", q.Domain)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("limit", strconv.Itoa(q.PageSize))
	}
	var page models.SearchPage
	if err := c.getJSON(ctx, "/api/v1/search?"+v.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListDocuments fetches one page of the document catalog.
func (c *Client) ListDocuments(ctx context.Context, q models.ListQuery) (*models.DocumentPage, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("limit", strconv.Itoa(q.PageSize))
	}
	var page models.DocumentPage
	if err := c.getJSON(ctx, "/api/v1/documents?"+v.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Status fetches the server's status report.
func (c *Client) Status(ctx context.Context) (*models.StatusReport, error) {
	var st models.StatusReport
	if err := c.getJSON(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Export downloads an encoded export.
func (c *Client) Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/export", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	res := &models.ExportResult{Data: data, Rows: headerInt(resp, "X-Export-Rows"), Total: headerInt(resp, "X-Export-Total")}
	res.Truncated = resp.Header.Get("X-Export-Truncated") == "true"
	res.Format, _ = models.ParseExportFormat(req.Format)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		res.FileName = params["filename"]
	}
	return res, nil
}

// Upload streams the file at path to the server as a multipart upload.
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("document", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/documents", pr, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var res models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

// WatchDirectories lists the server's drop directories.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.getJSON(ctx, "/api/v1/watch/directories", &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddWatchDirectory adds a drop directory and syncs the files already in it.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// RemoveWatchDirectory stops watching a drop directory.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends a request and turns non-2xx responses into errors carrying the server's kind.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.owner != "" {
		req.Header.Set("X-Owner-ID", c.owner)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Error.Kind != "" {
		return errs.Newf(errs.Kind(body.Error.Kind), "server returned %d: %s", resp.StatusCode, body.Error.Message)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func headerInt(resp *http.Response, name string) int {
	n, _ := strconv.Atoi(resp.Header.Get(name))
	return n
}
