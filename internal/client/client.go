// Package client talks to the challenge chat HTTP API on behalf of one
// signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"challenge-chat/internal/cache"
	"challenge-chat/internal/models"
)

var (
	// ErrNoMembership is returned when the user has not joined a challenge.
	ErrNoMembership = errors.New("not a challenge member")
	// ErrNotFailed is returned when retrying an entry that is not failed.
	ErrNotFailed = errors.New("no failed send with that client id")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error status=%d: %s", e.Status, e.Message)
}

var parentFields = map[models.ParentKind]string{
	models.ParentPost:      "postId",
	models.ParentChallenge: "challengeId",
	models.ParentCheckIn:   "checkInId",
	models.ParentThread:    "threadId",
	models.ParentReply:     "replyToId",
}

// Client is an authenticated API client with an injected cache.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Cache   *cache.Cache
}

// New builds a Client. A nil cache gets an in-memory one.
func New(baseURL, token string, c *cache.Cache) *Client {
	if c == nil {
		c = cache.New(nil)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Cache:   c,
	}
}

// Membership returns the caller's membership in a challenge.
func (c *Client) Membership(ctx context.Context, challengeID int64) (models.Membership, error) {
	var resp struct {
		Membership *models.Membership `json:"membership"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/challenges/%d", challengeID), nil, "", &resp); err != nil {
		return models.Membership{}, err
	}
	if resp.Membership == nil {
		return models.Membership{}, ErrNoMembership
	}
	return *resp.Membership, nil
}

// ChatFeed loads a cohort's chat, oldest first.
func (c *Client) ChatFeed(ctx context.Context, challengeID, cohortID int64, tz string) ([]models.ChatItem, error) {
	path := fmt.Sprintf("/challenges/%d/cohorts/%d/chat", challengeID, cohortID)
	if tz != "" {
		path += "?tz=" + url.QueryEscape(tz)
	}
	var resp struct {
		Items []models.ChatItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Comments returns the comments under a parent, from the cache when present.
func (c *Client) Comments(ctx context.Context, kind models.ParentKind, parentID int64) ([]models.ChatItem, error) {
	if items, ok := c.Cache.Comments(kind, parentID); ok {
		return items, nil
	}
	q := url.Values{}
	q.Set("parentKind", string(kind))
	q.Set("parentId", strconv.FormatInt(parentID, 10))
	var resp struct {
		Comments []models.ChatItem `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, "/comments?"+q.Encode(), nil, "", &resp); err != nil {
		return nil, err
	}
	c.Cache.SetComments(kind, parentID, resp.Comments)
	return resp.Comments, nil
}

// SendComment posts a comment. item.ParentKind and item.ParentID name the
// parent; item.ClientID is round-tripped.
func (c *Client) SendComment(ctx context.Context, item models.ChatItem) (models.ChatItem, error) {
	field, ok := parentFields[item.ParentKind]
	if !ok || item.ParentID <= 0 {
		return models.ChatItem{}, fmt.Errorf("comment needs a parent, got %q/%d", item.ParentKind, item.ParentID)
	}
	fields := map[string]string{
		"body":     item.Body,
		"clientId": item.ClientID,
		field:      strconv.FormatInt(item.ParentID, 10),
	}
	var created models.ChatItem
	if err := c.postForm(ctx, "/comments", fields, &created); err != nil {
		return models.ChatItem{}, err
	}
	c.Cache.AddComment(created)
	return created, nil
}

// SendCheckIn posts a check-in to the challenge in item.ChallengeID.
func (c *Client) SendCheckIn(ctx context.Context, item models.ChatItem) (models.ChatItem, error) {
	fields := map[string]string{
		"body":        item.Body,
		"clientId":    item.ClientID,
		"challengeId": strconv.FormatInt(item.ChallengeID, 10),
	}
	var created models.ChatItem
	err := c.postForm(ctx, "/checkins", fields, &created)
	return created, err
}

// Send dispatches an optimistic item to the endpoint for its kind.
func (c *Client) Send(ctx context.Context, item models.ChatItem) (models.ChatItem, error) {
	switch item.Kind {
	case models.KindCheckIn:
		return c.SendCheckIn(ctx, item)
	case models.KindComment, "":
		return c.SendComment(ctx, item)
	default:
		fields := map[string]string{"body": item.Body, "clientId": item.ClientID}
		if item.ChallengeID != 0 {
			fields["challengeId"] = strconv.FormatInt(item.ChallengeID, 10)
		}
		var created models.ChatItem
		err := c.postForm(ctx, "/posts", fields, &created)
		return created, err
	}
}

// Likes returns the ids the user liked for kind, from the cache when present.
func (c *Client) Likes(ctx context.Context, kind models.ItemKind) ([]int64, error) {
	if ids, ok := c.Cache.Likes(kind); ok {
		return ids, nil
	}
	var resp struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/likes?targetKind="+url.QueryEscape(string(kind)), nil, "", &resp); err != nil {
		return nil, err
	}
	c.Cache.SetLikes(kind, resp.IDs)
	return resp.IDs, nil
}

// Like likes a target.
func (c *Client) Like(ctx context.Context, kind models.ItemKind, id int64) error {
	if err := c.likeRequest(ctx, http.MethodPost, kind, id); err != nil {
		return err
	}
	c.Cache.MarkLiked(kind, id, true)
	return nil
}

// Unlike removes a like.
func (c *Client) Unlike(ctx context.Context, kind models.ItemKind, id int64) error {
	if err := c.likeRequest(ctx, http.MethodDelete, kind, id); err != nil {
		return err
	}
	c.Cache.MarkLiked(kind, id, false)
	return nil
}

func (c *Client) likeRequest(ctx context.Context, method string, kind models.ItemKind, id int64) error {
	body, err := json.Marshal(map[string]any{"targetKind": kind, "targetId": id})
	if err != nil {
		return err
	}
	return c.do(ctx, method, "/likes", bytes.NewReader(body), "application/json", nil)
}

func (c *Client) postForm(ctx context.Context, path string, fields map[string]string, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
