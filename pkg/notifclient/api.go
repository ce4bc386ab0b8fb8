package notifclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// API is the Query API as consumed by the controller.
type API interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id string) (time.Time, error)
	MarkUnread(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (time.Time, error)
	Delete(ctx context.Context, id string) error
	DeleteAllRead(ctx context.Context) error
}

const defaultRequestTimeout = 15 * time.Second

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RESTClient talks to the Query API over fasthttp.
type RESTClient struct {
	baseURL string
	token   string
	client  *fasthttp.Client
	timeout time.Duration
}

var _ API = (*RESTClient)(nil)

// NewRESTClient targets baseURL, e.g. http://localhost:3000/api.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &fasthttp.Client{
			Name:                "notifcli",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: defaultRequestTimeout,
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return newError(KindNetwork, "request cancelled", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return newError(KindNetwork, fmt.Sprintf("%s %s failed", method, path), err)
	}

	var env envelope
	body := resp.Body()
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return newError(KindNetwork, fmt.Sprintf("%s %s returned an unreadable body", method, path), err)
		}
	}

	status := resp.StatusCode()
	if status >= 300 || (len(body) > 0 && !env.Success) {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", status)
		}
		return newError(kindForStatus(status), msg, nil)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return newError(KindNetwork, fmt.Sprintf("%s %s returned unexpected data", method, path), err)
		}
	}
	return nil
}

func (c *RESTClient) List(ctx context.Context, params ListParams) (*ListResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("limit", strconv.Itoa(params.Limit))
	if params.UnreadOnly {
		q.Set("unreadOnly", "true")
	}

	var out ListResult
	if err := c.do(ctx, fasthttp.MethodGet, "/notifications", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/notifications/unread/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *RESTClient) MarkRead(ctx context.Context, id string) (time.Time, error) {
	var out struct {
		ReadAt time.Time `json:"readAt"`
	}
	if err := c.do(ctx, fasthttp.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.ReadAt, nil
}

func (c *RESTClient) MarkUnread(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodPut, "/notifications/"+url.PathEscape(id)+"/unread", nil, nil)
}

func (c *RESTClient) MarkAllRead(ctx context.Context) (time.Time, error) {
	var out struct {
		ReadAt time.Time `json:"readAt"`
	}
	if err := c.do(ctx, fasthttp.MethodPut, "/notifications/read-all", nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.ReadAt, nil
}

func (c *RESTClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

func (c *RESTClient) DeleteAllRead(ctx context.Context) error {
	return c.do(ctx, fasthttp.MethodDelete, "/notifications/read/all", nil, nil)
}
