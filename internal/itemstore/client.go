package itemstore

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

	"golang.org/x/sync/errgroup"

	"shoplist/internal/protocol"
)

// MethodUpdate is the verb the backend routes item and done-flag updates on.
const MethodUpdate = "UPDATE"

const collectPath = "/einkaufs_api/collect/"

type Options struct {
	BaseURL    string
	Deployment string
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the items/tags REST backend of one deployment.
// Every call is independent; nothing is cached.
type Client struct {
	baseURL    string
	deployment string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		deployment: strings.TrimSpace(opts.Deployment),
		apiKey:     opts.APIKey,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
	}
}

func (c *Client) APIKey() string {
	return c.apiKey
}

func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, "list items", http.MethodGet, c.apiURL("items"), nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// CreateItem posts a new item. The backend assigns the id; done starts false.
func (c *Client) CreateItem(ctx context.Context, data ItemData) (Item, error) {
	data.ID = ""
	var created Item
	err := c.do(ctx, "create item", http.MethodPost, c.apiURL("items"), itemEnvelope{ItemData: data}, &created)
	if err := acceptUndecodable(err); err != nil {
		return Item{}, err
	}
	if created.Title == "" && created.ID == "" {
		created = Item{Title: data.Title, Tags: data.Tags}
	}
	return created, nil
}

// UpdateItem replaces title and tags of an existing item.
func (c *Client) UpdateItem(ctx context.Context, id protocol.ItemID, data ItemData) (Item, error) {
	data.ID = id
	var updated Item
	err := c.do(ctx, "update item", MethodUpdate, c.apiURL("items", string(id)), itemEnvelope{ItemData: data}, &updated)
	if err := acceptUndecodable(err); err != nil {
		return Item{}, err
	}
	if updated.ID == "" {
		updated = Item{ID: id, Title: data.Title, Tags: data.Tags}
	}
	return updated, nil
}

func (c *Client) SetDone(ctx context.Context, id protocol.ItemID, done bool) error {
	return c.do(ctx, "set done", MethodUpdate, c.apiURL("items", string(id), "done"), doneBody{Done: done}, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id protocol.ItemID) error {
	return c.do(ctx, "delete item", http.MethodDelete, c.apiURL("items", string(id)), nil, nil)
}

// DeleteItems issues one DELETE per id concurrently and waits for all of them.
// Failures do not stop the remaining deletes; they are joined in the result.
func (c *Client) DeleteItems(ctx context.Context, ids []protocol.ItemID) error {
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			if err := c.DeleteItem(ctx, id); err != nil {
				errs[i] = fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	var out tagsResponse
	if err := c.do(ctx, "list tags", http.MethodGet, c.apiURL("tags"), nil, &out); err != nil {
		return nil, err
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out.Tags, nil
}

func (c *Client) Collect(ctx context.Context, rec CollectRecord) error {
	return c.do(ctx, "collect", http.MethodPost, c.baseURL+collectPath, rec, nil)
}

func (c *Client) apiURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/")
	b.WriteString(url.PathEscape(c.deployment))
	b.WriteString("/api/v1")
	for _, s := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(s))
	}
	q := url.Values{}
	q.Set("k", c.apiKey)
	b.WriteString("?")
	b.WriteString(q.Encode())
	return b.String()
}

func (c *Client) do(ctx context.Context, op, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		return newFetchError(op, res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &decodeError{op: op, err: err}
	}
	return nil
}

type decodeError struct {
	op  string
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("%s: decode body: %v", e.op, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

// acceptUndecodable treats a 2xx response with an unexpected body as success.
func acceptUndecodable(err error) error {
	var de *decodeError
	if errors.As(err, &de) {
		return nil
	}
	return err
}
