// Package client is a typed HTTP client for the olympiad REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/olympiad/internal/model"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

// Client talks to one server with one credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. timeout bounds every request.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of c that sends token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the credential the client sends.
func (c *Client) Token() string { return c.token }

// LoginResponse is the body returned by POST /auth/login.
type LoginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login exchanges a username and password for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExams returns the exam catalogue.
func (c *Client) ListExams(ctx context.Context) ([]model.ExamSummary, error) {
	var out []model.ExamSummary
	err := c.do(ctx, http.MethodGet, "/exams", nil, &out)
	return out, err
}

// ExamBySlug fetches an exam definition without answer keys.
func (c *Client) ExamBySlug(ctx context.Context, slug string) (*model.PublicExam, error) {
	var out model.PublicExam
	if err := c.do(ctx, http.MethodGet, "/exams/slug/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit sends an attempt for grading.
func (c *Client) Submit(ctx context.Context, p model.SubmissionPayload) (*model.ExamResult, error) {
	var out model.ExamResult
	if err := c.do(ctx, http.MethodPost, "/exam-results", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyResults lists the caller's results, newest first.
func (c *Client) MyResults(ctx context.Context) ([]model.ExamResult, error) {
	var out []model.ExamResult
	err := c.do(ctx, http.MethodGet, "/exam-results/me", nil, &out)
	return out, err
}

// Result fetches one result.
func (c *Client) Result(ctx context.Context, id string) (*model.ExamResult, error) {
	var out model.ExamResult
	if err := c.do(ctx, http.MethodGet, "/exam-results/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
			apiErr.Kind = eb.Error.Kind
			apiErr.Message = eb.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
