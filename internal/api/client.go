package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "CHARITY_HTTP_TIMEOUT"
	apiTokenEnvKey     = "CHARITY_API_TOKEN"
	adminTokenEnvKey   = "CHARITY_ADMIN_TOKEN"
	adminUserEnvKey    = "CHARITY_ADMIN_USER"
	adminPassEnvKey    = "CHARITY_ADMIN_PASSWORD"
)

// Client is a simple HTTP client for the charity attachment API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
	adminUser  string
	adminPass  string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		adminUser:  strings.TrimSpace(os.Getenv(adminUserEnvKey)),
		adminPass:  os.Getenv(adminPassEnvKey),
	}
}

// Health returns server liveness and backend availability.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

func (c *Client) Info(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/admin/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateArticle(ctx context.Context, req ArticleCreateRequest) (models.Article, error) {
	var resp models.Article
	err := c.do(ctx, http.MethodPost, "/v1/articles", nil, req, &resp)
	return resp, err
}

func (c *Client) GetArticle(ctx context.Context, id string) (models.Article, error) {
	var resp models.Article
	err := c.do(ctx, http.MethodGet, "/v1/articles/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// UploadAttachment sends content as the multipart "file" field.
func (c *Client) UploadAttachment(ctx context.Context, articleID, filename, mimeType string, content io.Reader) (models.Attachment, error) {
	var resp models.Attachment
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		header["Content-Type"] = []string{mimeType}
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/articles/"+url.PathEscape(articleID)+"/attachments", pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeader(req)
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) ListAttachments(ctx context.Context, articleID string) ([]models.Attachment, error) {
	var resp []models.Attachment
	err := c.do(ctx, http.MethodGet, "/v1/articles/"+url.PathEscape(articleID)+"/attachments", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetAttachment(ctx context.Context, id string) (models.Attachment, error) {
	var resp models.Attachment
	err := c.do(ctx, http.MethodGet, "/v1/attachments/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteAttachment(ctx context.Context, articleID, id string) (AttachmentDeleteResponse, error) {
	var resp AttachmentDeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/articles/"+url.PathEscape(articleID)+"/attachments/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// DownloadAttachment streams attachment bytes to w.
func (c *Client) DownloadAttachment(ctx context.Context, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/attachments/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) ListOrphans(ctx context.Context, query url.Values) (OrphanListResponse, error) {
	var resp OrphanListResponse
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/cleanup/orphaned-files", query, nil, &resp)
	return resp, err
}

func (c *Client) ResolveOrphan(ctx context.Context, id string, req OrphanResolveRequest) (models.OrphanedFile, error) {
	var resp models.OrphanedFile
	err := c.doAdmin(ctx, http.MethodPut, "/v1/admin/cleanup/orphaned-files/"+url.PathEscape(id), nil, req, &resp)
	return resp, err
}

func (c *Client) DeleteOrphan(ctx context.Context, id string) error {
	return c.doAdmin(ctx, http.MethodDelete, "/v1/admin/cleanup/orphaned-files/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Scan(ctx context.Context) (ScanResponse, error) {
	var resp ScanResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/cleanup/scan", nil, nil, &resp)
	return resp, err
}

func (c *Client) ProcessOrphans(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	var resp ProcessResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/cleanup/process-orphaned", nil, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)
	return c.send(req, out)
}

func (c *Client) doAdmin(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	c.setAdminHeader(req)
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, ErrorCode: errResp.ErrorCode, Message: errResp.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

// setAdminHeader prefers the shared admin token over operator credentials.
func (c *Client) setAdminHeader(req *http.Request) {
	if req == nil {
		return
	}
	switch {
	case c.adminToken != "":
		req.Header.Set("X-Admin-Token", c.adminToken)
	case c.adminUser != "":
		req.SetBasicAuth(c.adminUser, c.adminPass)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
