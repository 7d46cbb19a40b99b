package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
)

// Client submits orders to a running server over its JSON API. It satisfies
// Submitter, MenuSource and Lookup.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	csrf    string
}

type apiError struct {
	Error        string `json:"error"`
	Field        string `json:"field"`
	IngredientID string `json:"ingredient_id"`
	MenuName     string `json:"menu_name"`
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Login obtains an access token and a CSRF token for later submissions.
func (c *Client) Login(ctx context.Context, username string, password string) error {
	var login domain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password}, &login); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = login.AccessToken

	var csrf struct {
		Token string `json:"csrf_token"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/csrf-token", nil, &csrf); err != nil {
		return fmt.Errorf("csrf token: %w", err)
	}
	c.csrf = csrf.Token
	return nil
}

func (c *Client) GetSellableMenu(ctx context.Context, storeID string) (domain.MenuListResponse, error) {
	var resp domain.MenuListResponse
	path := "/api/v1/menu"
	if storeID != "" {
		path += "?store_id=" + url.QueryEscape(storeID)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.OrderResponse, error) {
	var resp domain.OrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/orders", req, &resp)
	return resp, err
}

func (c *Client) LookupOrderByIdempotency(ctx context.Context, storeID string, key string) (domain.OrderLookupResponse, error) {
	var resp domain.OrderLookupResponse
	path := "/api/v1/orders/idempotency/" + url.PathEscape(key)
	if storeID != "" {
		path += "?store_id=" + url.QueryEscape(storeID)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method string, path string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return errorFor(res.StatusCode, apiErr)
	}
	return json.NewDecoder(res.Body).Decode(dest)
}

// errorFor turns an API error body back into the store error it came from,
// so callers can tell final answers from retryable failures.
func errorFor(status int, apiErr apiError) error {
	switch {
	case status == http.StatusConflict && apiErr.IngredientID != "":
		return &store.InsufficientStockError{IngredientID: apiErr.IngredientID, MenuName: apiErr.MenuName}
	case status == http.StatusBadRequest && apiErr.Field != "":
		return store.Invalid(apiErr.Field, apiErr.Error)
	default:
		return fmt.Errorf("http %d: %s", status, apiErr.Error)
	}
}
