// Package reqres reads sample users from a reqres.in compatible API.
package reqres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var ErrUpstream = errors.New("upstream error")

type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

type page struct {
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Data       []User `json:"data"`
}

type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	maxPages int
	http     *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration, maxPages int) *Client {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		timeout:  timeout,
		maxPages: maxPages,
		http:     &http.Client{},
	}
}

// FetchUsers walks the paged /users listing. Any failed page aborts the
// whole fetch; nothing is retried.
func (c *Client) FetchUsers(ctx context.Context) ([]User, error) {
	var users []User
	for pageNum := 1; pageNum <= c.maxPages; pageNum++ {
		p, err := c.fetchPage(ctx, pageNum)
		if err != nil {
			return nil, err
		}
		users = append(users, p.Data...)
		if p.TotalPages <= pageNum || len(p.Data) == 0 {
			break
		}
	}
	return users, nil
}

func (c *Client) fetchPage(ctx context.Context, pageNum int) (*page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/users?page=" + strconv.Itoa(pageNum)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrUpstream, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: get %s: status %d", ErrUpstream, url, resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUpstream, url, err)
	}
	if p.Data == nil {
		return nil, fmt.Errorf("%w: %s: missing data", ErrUpstream, url)
	}
	return &p, nil
}
