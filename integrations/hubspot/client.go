// Package hubspot wraps the small CRM surface the platform touches:
// contact upserts and the "first invitation" engagement note.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL     = "https://api.hubapi.com"
	contactsPath       = "/crm/v3/objects/contacts"
	notesPath          = "/crm/v3/objects/notes"
	defaultHTTPTimeout = 30 * time.Second
)

type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type contactProperties struct {
	Email   string `json:"email"`
	Name    string `json:"firstname,omitempty"`
	Company string `json:"company,omitempty"`
}

type contactRequest struct {
	Properties contactProperties `json:"properties"`
}

type noteProperties struct {
	Body      string `json:"hs_note_body"`
	Timestamp string `json:"hs_timestamp"`
}

type noteRequest struct {
	Properties noteProperties `json:"properties"`
}

// UpsertContact creates or refreshes the CRM contact for a platform user.
func (c *Client) UpsertContact(ctx context.Context, email, name, company string) error {
	req := contactRequest{Properties: contactProperties{
		Email:   email,
		Name:    name,
		Company: company,
	}}
	return c.post(ctx, contactsPath, req)
}

// RecordFirstInvitation leaves an engagement note marking a company's first
// outbound supplier/customer invitation.
func (c *Client) RecordFirstInvitation(ctx context.Context, inviterName, invitedName string) error {
	req := noteRequest{Properties: noteProperties{
		Body:      fmt.Sprintf("%s sent their first value-chain invitation (to %s)", inviterName, invitedName),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}
	return c.post(ctx, notesPath, req)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("hubspot: %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
