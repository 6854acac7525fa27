package n8napi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// maxPages guards against a server that keeps returning a cursor.
const maxPages = 1000

// ID is a workflow id. Older n8n releases use integers, newer ones strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("workflow id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Workflow is the summary n8n returns in workflow listings.
type Workflow struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AmbiguousError is returned when several workflows share a name.
type AmbiguousError struct {
	Name    string
	Matches []Workflow
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Matches))
	for i, w := range e.Matches {
		ids[i] = string(w.ID)
	}
	return fmt.Sprintf("%d workflows are named %q (ids %v); use the id instead", len(e.Matches), e.Name, ids)
}

// Login opens an owner session with email and password. Later requests go
// through the /rest routes with the session cookie.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"emailOrLdapLoginId": email,
		"password":           password,
	})
	if err != nil {
		return fmt.Errorf("marshal login: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	// A login must not carry a stale API key header.
	req.Header.Del(apiKeyHeader)
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return fmt.Errorf("login as %s: %w", email, err)
	}
	resp.Body.Close()
	c.auth = AuthSession
	c.log.Debug("logged in", "email", email)
	return nil
}

// listPage is either {"data": [...], "nextCursor": "..."} or a bare array.
type listPage struct {
	Data       []Workflow `json:"data"`
	NextCursor *string    `json:"nextCursor"`
}

func (p *listPage) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		p.NextCursor = nil
		return json.Unmarshal(data, &p.Data)
	}
	type plain listPage
	return json.Unmarshal(data, (*plain)(p))
}

// Workflows lists every workflow, following pagination cursors.
func (c *Client) Workflows(ctx context.Context) ([]Workflow, error) {
	var all []Workflow
	cursor := ""
	for range maxPages {
		page, err := c.listPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return all, nil
		}
		cursor = *page.NextCursor
	}
	return nil, fmt.Errorf("list workflows: more than %d pages", maxPages)
}

func (c *Client) listPage(ctx context.Context, cursor string) (listPage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.workflowsPath(), nil)
	if err != nil {
		return listPage{}, err
	}
	if cursor != "" {
		req.URL.RawQuery = url.Values{"cursor": {cursor}}.Encode()
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return listPage{}, fmt.Errorf("list workflows: %w", err)
	}
	defer resp.Body.Close()

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return listPage{}, fmt.Errorf("decode workflow list: %w", err)
	}
	return page, nil
}

// FindByName returns the one workflow named exactly name.
func (c *Client) FindByName(ctx context.Context, name string) (Workflow, error) {
	all, err := c.Workflows(ctx)
	if err != nil {
		return Workflow{}, err
	}
	return findByName(all, name)
}

// Resolve accepts a workflow id or an exact name. Ids win when both match.
func (c *Client) Resolve(ctx context.Context, ref string) (Workflow, error) {
	all, err := c.Workflows(ctx)
	if err != nil {
		return Workflow{}, err
	}
	for _, w := range all {
		if string(w.ID) == ref {
			return w, nil
		}
	}
	return findByName(all, ref)
}

func findByName(all []Workflow, name string) (Workflow, error) {
	var matches []Workflow
	for _, w := range all {
		if w.Name == name {
			matches = append(matches, w)
		}
	}
	switch len(matches) {
	case 0:
		return Workflow{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return Workflow{}, &AmbiguousError{Name: name, Matches: matches}
	}
}

// Export fetches the full workflow definition as n8n returns it.
func (c *Client) Export(ctx context.Context, id ID) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.workflowsPath()+"/"+string(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return unwrapData(raw), nil
}

// unwrapData strips the {"data": {...}} envelope of the /rest routes.
func unwrapData(raw json.RawMessage) json.RawMessage {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil || len(env) != 1 {
		return raw
	}
	if data, ok := env["data"]; ok && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return data
	}
	return raw
}

// importFields are the workflow properties the create endpoint accepts.
var importFields = []string{"name", "nodes", "connections", "settings", "staticData"}

// Import creates a workflow from an exported definition. Read-only
// properties such as id, active and tags are dropped first.
func (c *Client) Import(ctx context.Context, definition []byte) (Workflow, error) {
	var src map[string]json.RawMessage
	if err := json.Unmarshal(definition, &src); err != nil {
		return Workflow{}, fmt.Errorf("parse workflow definition: %w", err)
	}
	src = unwrapObject(src)

	body := make(map[string]json.RawMessage, len(importFields))
	for _, f := range importFields {
		if v, ok := src[f]; ok {
			body[f] = v
		}
	}
	if _, ok := body["name"]; !ok {
		return Workflow{}, errors.New("parse workflow definition: missing name")
	}
	if _, ok := body["nodes"]; !ok {
		body["nodes"] = json.RawMessage("[]")
	}
	if _, ok := body["connections"]; !ok {
		body["connections"] = json.RawMessage("{}")
	}
	if _, ok := body["settings"]; !ok {
		body["settings"] = json.RawMessage("{}")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Workflow{}, fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.workflowsPath(), bytes.NewReader(payload))
	if err != nil {
		return Workflow{}, err
	}
	resp, err := c.do(req, http.StatusOK, http.StatusCreated)
	if err != nil {
		return Workflow{}, fmt.Errorf("import workflow: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Workflow{}, fmt.Errorf("decode imported workflow: %w", err)
	}
	var w Workflow
	if err := json.Unmarshal(unwrapData(raw), &w); err != nil {
		return Workflow{}, fmt.Errorf("decode imported workflow: %w", err)
	}
	return w, nil
}

// unwrapObject accepts a definition saved with or without the envelope.
func unwrapObject(m map[string]json.RawMessage) map[string]json.RawMessage {
	data, ok := m["data"]
	if !ok || len(m) != 1 {
		return m
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(data, &inner); err != nil {
		return m
	}
	return inner
}

// Delete removes a workflow. n8n answers 200 with the deleted workflow or
// 204 with no body depending on the route.
func (c *Client) Delete(ctx context.Context, id ID) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.workflowsPath()+"/"+string(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	resp.Body.Close()
	c.log.Info("workflow deleted", "id", string(id))
	return nil
}
