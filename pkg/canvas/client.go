// Package canvas 封装了 Canvas LMS REST API 的访问。
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"easy-canvas-go/internal/model"
)

const perPage = "100"

// Client 定义了后端需要的 Canvas 接口。所有调用都以当前 token 的用户身份进行。
type Client interface {
	CurrentUser(ctx context.Context) (*model.CanvasUser, error)
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListAssignments(ctx context.Context, courseID int64) ([]model.Assignment, error)
	GetSubmission(ctx context.Context, courseID, assignmentID int64) (*model.Submission, error)
	ListModules(ctx context.Context, courseID int64, includeItems bool) ([]model.Module, error)
	ListModuleItems(ctx context.Context, courseID, moduleID int64) ([]model.ModuleItem, error)
	ListAnnouncements(ctx context.Context, courseID int64, start, end time.Time) ([]model.Announcement, error)
}

// Dialer 根据用户保存的地址和 token 创建 Client。
type Dialer interface {
	Dial(baseURL, token string) (Client, error)
}

// APIError 表示 Canvas 返回了非 2xx 状态码。
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unauthorized 判断是否为凭证无效。
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type httpDialer struct {
	httpClient *http.Client
}

// NewDialer 创建使用给定超时的 Dialer。
func NewDialer(timeout time.Duration) Dialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpDialer{httpClient: &http.Client{Timeout: timeout}}
}

func (d *httpDialer) Dial(baseURL, token string) (Client, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("canvas token is empty")
	}
	return &httpClient{baseURL: base, token: token, http: d.httpClient}, nil
}

// NormalizeBaseURL 补全协议并去掉末尾的斜杠和 /api/v1 后缀。
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("canvas url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid canvas url %q", raw)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api/v1")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *httpClient) CurrentUser(ctx context.Context) (*model.CanvasUser, error) {
	var w wireUser
	if _, err := c.get(ctx, c.endpoint("/users/self", nil), &w); err != nil {
		return nil, err
	}
	u := parseUser(w)
	return &u, nil
}

func (c *httpClient) ListCourses(ctx context.Context) ([]model.Course, error) {
	q := url.Values{}
	q.Set("per_page", perPage)
	wires, err := getPaged[wireCourse](ctx, c, c.endpoint("/courses", q))
	if err != nil {
		return nil, err
	}
	courses := make([]model.Course, 0, len(wires))
	for _, w := range wires {
		courses = append(courses, parseCourse(w))
	}
	return courses, nil
}

func (c *httpClient) ListAssignments(ctx context.Context, courseID int64) ([]model.Assignment, error) {
	q := url.Values{}
	q.Set("per_page", perPage)
	q.Add("include[]", "submission")
	wires, err := getPaged[wireAssignment](ctx, c, c.endpoint(fmt.Sprintf("/courses/%d/assignments", courseID), q))
	if err != nil {
		return nil, err
	}
	out := make([]model.Assignment, 0, len(wires))
	for _, w := range wires {
		out = append(out, parseAssignment(w, courseID))
	}
	return out, nil
}

func (c *httpClient) GetSubmission(ctx context.Context, courseID, assignmentID int64) (*model.Submission, error) {
	var w wireSubmission
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions/self", courseID, assignmentID)
	if _, err := c.get(ctx, c.endpoint(path, nil), &w); err != nil {
		return nil, err
	}
	s := parseSubmission(&w)
	return &s, nil
}

func (c *httpClient) ListModules(ctx context.Context, courseID int64, includeItems bool) ([]model.Module, error) {
	q := url.Values{}
	q.Set("per_page", perPage)
	if includeItems {
		q.Add("include[]", "items")
	}
	wires, err := getPaged[wireModule](ctx, c, c.endpoint(fmt.Sprintf("/courses/%d/modules", courseID), q))
	if err != nil {
		return nil, err
	}
	out := make([]model.Module, 0, len(wires))
	for _, w := range wires {
		out = append(out, parseModule(w))
	}
	return out, nil
}

func (c *httpClient) ListModuleItems(ctx context.Context, courseID, moduleID int64) ([]model.ModuleItem, error) {
	q := url.Values{}
	q.Set("per_page", perPage)
	path := fmt.Sprintf("/courses/%d/modules/%d/items", courseID, moduleID)
	wires, err := getPaged[wireModuleItem](ctx, c, c.endpoint(path, q))
	if err != nil {
		return nil, err
	}
	out := make([]model.ModuleItem, 0, len(wires))
	for _, w := range wires {
		out = append(out, parseModuleItem(w, moduleID))
	}
	return out, nil
}

func (c *httpClient) ListAnnouncements(ctx context.Context, courseID int64, start, end time.Time) ([]model.Announcement, error) {
	q := url.Values{}
	q.Set("per_page", perPage)
	q.Add("context_codes[]", "course_"+strconv.FormatInt(courseID, 10))
	q.Set("start_date", start.UTC().Format(time.RFC3339))
	q.Set("end_date", end.UTC().Format(time.RFC3339))
	wires, err := getPaged[wireAnnouncement](ctx, c, c.endpoint("/announcements", q))
	if err != nil {
		return nil, err
	}
	out := make([]model.Announcement, 0, len(wires))
	for _, w := range wires {
		out = append(out, parseAnnouncement(w))
	}
	return out, nil
}

func (c *httpClient) endpoint(path string, q url.Values) string {
	u := c.baseURL + "/api/v1" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// get 请求单个 URL 并解码到 out，返回响应头中的下一页地址。
func (c *httpClient) get(ctx context.Context, rawURL string, out interface{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call canvas api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, URL: req.URL.Path, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("failed to decode canvas response %s: %w", req.URL.Path, err)
	}
	return nextLink(resp.Header.Get("Link")), nil
}

// getPaged 依次请求 Link rel="next" 直到取完全部分页。
func getPaged[T any](ctx context.Context, c *httpClient, rawURL string) ([]T, error) {
	var all []T
	for next := rawURL; next != ""; {
		var page []T
		n, err := c.get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		next = n
	}
	return all, nil
}

// nextLink 从 Link 头中找出 rel="next" 的地址。
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		for _, attr := range segs[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
