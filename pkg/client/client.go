// Package client is a typed Go client for the patient registration API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"patient-registration/internal/rules"
)

// BasePath is the API prefix every call is made under.
const BasePath = "/api/v1"

type Patient struct {
	ID               int64     `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	PhoneCountryCode string    `json:"phone_country_code"`
	PhoneNumber      string    `json:"phone_number"`
	DocumentPhotoURL string    `json:"document_photo_url"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreatePatientInput is a registration submission. Photo is streamed as the
// document_photo part under PhotoName.
type CreatePatientInput struct {
	FullName         string
	Email            string
	PhoneCountryCode string
	PhoneNumber      string
	PhotoName        string
	Photo            io.Reader
}

// APIError is returned for any response with success=false.
type APIError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
	Detail     string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		if e.Detail != "" {
			return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, e.Detail)
		}
		return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
	}

	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e.Errors[field], ", "))
	}
	return fmt.Sprintf("%d %s (%s)", e.StatusCode, e.Message, strings.Join(parts, "; "))
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
	Error   string              `json:"error"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/") + BasePath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var patients []Patient
	if err := c.do(ctx, http.MethodGet, "/patients", nil, "", &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

func (c *Client) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	var patient Patient
	if err := c.do(ctx, http.MethodGet, "/patients/"+strconv.FormatInt(id, 10), nil, "", &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (c *Client) CreatePatient(ctx context.Context, in CreatePatientInput) (*Patient, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{rules.FieldFullName, in.FullName},
		{rules.FieldEmail, in.Email},
		{rules.FieldPhoneCountryCode, in.PhoneCountryCode},
		{rules.FieldPhoneNumber, in.PhoneNumber},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	if in.Photo != nil {
		part, err := mw.CreateFormFile(rules.FieldDocumentPhoto, in.PhotoName)
		if err != nil {
			return nil, fmt.Errorf("create photo part: %w", err)
		}
		if _, err := io.Copy(part, in.Photo); err != nil {
			return nil, fmt.Errorf("write photo: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var patient Patient
	if err := c.do(ctx, http.MethodPost, "/patients", &body, mw.FormDataContentType(), &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (c *Client) DeletePatient(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/patients/"+strconv.FormatInt(id, 10), nil, "", nil)
}

// Rules fetches the rule table the server validates with.
func (c *Client) Rules(ctx context.Context) (*rules.Table, error) {
	var table rules.Table
	if err := c.do(ctx, http.MethodGet, "/patients/rules", nil, "", &table); err != nil {
		return nil, err
	}
	return &table, nil
}

// PhotoURL resolves a document_photo_url against the server origin.
func (c *Client) PhotoURL(p *Patient) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return p.DocumentPhotoURL
	}
	ref, err := url.Parse(p.DocumentPhotoURL)
	if err != nil {
		return p.DocumentPhotoURL
	}
	return u.ResolveReference(ref).String()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Detail: err.Error()}
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    env.Message,
			Errors:     env.Errors,
			Detail:     env.Error,
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
