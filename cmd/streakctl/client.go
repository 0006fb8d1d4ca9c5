package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"handstreak/native/referral"
	"handstreak/native/streak"
	"handstreak/services/streakd"
)

// errNotFound is returned for 404 responses.
var errNotFound = errors.New("not found")

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("streakd returned %d: %s", e.Status, e.Message)
}

type client struct {
	base     string
	operator string
	http     *http.Client
}

func newClient(base, operator string) *client {
	return &client{
		base:     strings.TrimRight(base, "/"),
		operator: operator,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) process(ctx context.Context, body io.Reader, name, day string, force bool) (streakd.RunResult, error) {
	query := url.Values{}
	if day != "" {
		query.Set("day", day)
	}
	if force {
		query.Set("force", "true")
	}
	contentType := "application/json"
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		contentType = "text/csv"
	}
	var result streakd.RunResult
	err := c.do(ctx, http.MethodPost, "/v1/runs?"+query.Encode(), contentType, body, &result)
	return result, err
}

func (c *client) player(ctx context.Context, username string) (streakd.PlayerStatus, error) {
	var status streakd.PlayerStatus
	err := c.do(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(username), "", nil, &status)
	return status, err
}

type overrideReply struct {
	streak.OverrideResult
	Prompt string `json:"prompt"`
}

func (c *client) propose(ctx context.Context, username string, value int64) (overrideReply, error) {
	return c.override(ctx, "/v1/overrides", username, value)
}

func (c *client) confirm(ctx context.Context, username string, value int64) (overrideReply, error) {
	return c.override(ctx, "/v1/overrides/confirm", username, value)
}

func (c *client) override(ctx context.Context, path, username string, value int64) (overrideReply, error) {
	payload, err := json.Marshal(map[string]any{"username": username, "streak": value})
	if err != nil {
		return overrideReply{}, err
	}
	var reply overrideReply
	err = c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload), &reply)
	return reply, err
}

func (c *client) cancel(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/overrides", "", nil, nil)
}

func (c *client) addReferral(ctx context.Context, referred string, hands int64, referrer string) (referral.Entry, error) {
	payload, err := json.Marshal(map[string]any{
		"referred_player": referred,
		"hands_played":    hands,
		"referrer_player": referrer,
	})
	if err != nil {
		return referral.Entry{}, err
	}
	var entry referral.Entry
	err = c.do(ctx, http.MethodPost, "/v1/referrals", "application/json", bytes.NewReader(payload), &entry)
	return entry, err
}

func (c *client) referrals(ctx context.Context, referrer string) (referral.Summary, error) {
	var summary referral.Summary
	err := c.do(ctx, http.MethodGet, "/v1/referrals/"+url.PathEscape(referrer), "", nil, &summary)
	return summary, err
}

func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.operator != "" {
		req.Header.Set("X-Operator", c.operator)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, payload.Error)
		}
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %q response: %w", path, err)
	}
	return nil
}
