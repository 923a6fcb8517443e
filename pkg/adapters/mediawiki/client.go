package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// Client talks to a MediaWiki action API endpoint. It implements
// ports.ContentAPI for both reading wikitext and submitting edits.
type Client struct {
	baseURL     string
	accessToken string
	userAgent   string
	httpClient  *http.Client
	logger      *zap.Logger
}

// Config holds the settings needed to reach a wiki
type Config struct {
	// BaseURL is the full action API endpoint, e.g.
	// https://en.wikipedia.org/w/api.php
	BaseURL     string
	AccessToken string
	UserAgent   string
	Timeout     time.Duration
}

// NewClient creates a new MediaWiki API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type apiResponse struct {
	Error *apiError `json:"error"`
	Query *struct {
		Pages []struct {
			PageID    int64  `json:"pageid"`
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				RevID int64 `json:"revid"`
				Slots struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
		CategoryMembers []struct {
			PageID int64  `json:"pageid"`
			Title  string `json:"title"`
		} `json:"categorymembers"`
	} `json:"query"`
	Edit *struct {
		Result string `json:"result"`
		NewRev int64  `json:"newrevid"`
	} `json:"edit"`
}

// FetchWikitext returns the current revision of a page by page id
func (c *Client) FetchWikitext(ctx context.Context, pageID int64) (domain.Revision, error) {
	params := url.Values{
		"action":  {"query"},
		"pageids": {strconv.FormatInt(pageID, 10)},
		"prop":    {"revisions"},
		"rvprop":  {"ids|content"},
		"rvslots": {"main"},
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		return domain.Revision{}, err
	}
	if resp.Query == nil || len(resp.Query.Pages) == 0 {
		return domain.Revision{}, fmt.Errorf("page %d: empty query response", pageID)
	}

	page := resp.Query.Pages[0]
	if page.Missing || len(page.Revisions) == 0 {
		return domain.Revision{}, fmt.Errorf("page %d: no current revision", pageID)
	}

	rev := page.Revisions[0]
	return domain.Revision{
		Page: domain.Page{ID: page.PageID, Title: page.Title, Revision: rev.RevID},
		Text: rev.Slots.Main.Content,
	}, nil
}

// SubmitEdit writes new page text, anchored to the revision the caller read.
// A conflicting intervening edit is reported as ports.EditConflict, not an
// error; errors mean the outcome is unknown.
func (c *Client) SubmitEdit(ctx context.Context, req ports.EditRequest) (ports.EditOutcome, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return ports.EditConflict, fmt.Errorf("fetch csrf token: %w", err)
	}

	form := url.Values{
		"action":        {"edit"},
		"pageid":        {strconv.FormatInt(req.PageID, 10)},
		"text":          {req.NewText},
		"summary":       {req.Summary},
		"baserevid":     {strconv.FormatInt(req.ExpectedRevision, 10)},
		"nocreate":      {"1"},
		"bot":           {"1"},
		"token":         {token},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	resp, err := c.post(ctx, form)
	if err != nil {
		return ports.EditConflict, err
	}
	if resp.Error != nil {
		if resp.Error.Code == "editconflict" {
			c.logger.Debug("edit conflict reported by wiki",
				zap.Int64("page_id", req.PageID),
				zap.Int64("base_revision", req.ExpectedRevision))
			return ports.EditConflict, nil
		}
		return ports.EditConflict, fmt.Errorf("edit page %d: %s (%s)", req.PageID, resp.Error.Info, resp.Error.Code)
	}
	if resp.Edit == nil || resp.Edit.Result != "Success" {
		return ports.EditConflict, fmt.Errorf("edit page %d: unexpected result", req.PageID)
	}
	return ports.EditOK, nil
}

// ListCategoryMembers lists up to limit pages in a category
func (c *Client) ListCategoryMembers(ctx context.Context, category string, limit int) ([]domain.Page, error) {
	var pages []domain.Page
	cont := ""

	for {
		params := url.Values{
			"action":  {"query"},
			"list":    {"categorymembers"},
			"cmtitle": {category},
			"cmtype":  {"page"},
			"cmlimit": {"500"},
		}
		if cont != "" {
			params.Set("cmcontinue", cont)
		}

		resp, raw, err := c.getRaw(ctx, params)
		if err != nil {
			return nil, err
		}
		if resp.Query == nil {
			return nil, fmt.Errorf("list %s: empty query response", category)
		}

		for _, m := range resp.Query.CategoryMembers {
			pages = append(pages, domain.Page{ID: m.PageID, Title: m.Title})
			if limit > 0 && len(pages) >= limit {
				return pages, nil
			}
		}

		cont = continueToken(raw)
		if cont == "" {
			return pages, nil
		}
	}
}

// PageExists reports whether a page with the given title exists
func (c *Client) PageExists(ctx context.Context, title string) (bool, error) {
	params := url.Values{
		"action": {"query"},
		"titles": {title},
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		return false, err
	}
	if resp.Query == nil || len(resp.Query.Pages) == 0 {
		return false, fmt.Errorf("query %q: empty response", title)
	}
	return !resp.Query.Pages[0].Missing, nil
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	params := url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"csrf"},
	}

	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.do(ctx, http.MethodGet, params, nil, &resp); err != nil {
		return "", err
	}
	if resp.Query.Tokens.CSRFToken == "" {
		return "", fmt.Errorf("wiki returned empty csrf token")
	}
	return resp.Query.Tokens.CSRFToken, nil
}

func (c *Client) get(ctx context.Context, params url.Values) (*apiResponse, error) {
	resp, _, err := c.getRaw(ctx, params)
	return resp, err
}

func (c *Client) getRaw(ctx context.Context, params url.Values) (*apiResponse, map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, params, nil, &raw); err != nil {
		return nil, nil, err
	}

	var resp apiResponse
	buf, _ := json.Marshal(raw)
	if err := json.Unmarshal(buf, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode api response: %w", err)
	}
	if resp.Error != nil {
		return nil, nil, fmt.Errorf("wiki api: %s (%s)", resp.Error.Info, resp.Error.Code)
	}
	return &resp, raw, nil
}

func (c *Client) post(ctx context.Context, form url.Values) (*apiResponse, error) {
	var resp apiResponse
	if err := c.do(ctx, http.MethodPost, nil, form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method string, params, form url.Values, out interface{}) error {
	endpoint := c.baseURL
	var body *strings.Reader

	if method == http.MethodGet {
		params.Set("format", "json")
		params.Set("formatversion", "2")
		endpoint += "?" + params.Encode()
		body = strings.NewReader("")
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wiki request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("wiki request: status %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// continueToken extracts the cmcontinue cursor from a raw query response
func continueToken(raw map[string]json.RawMessage) string {
	contRaw, ok := raw["continue"]
	if !ok {
		return ""
	}
	var cont struct {
		CMContinue string `json:"cmcontinue"`
	}
	if err := json.Unmarshal(contRaw, &cont); err != nil {
		return ""
	}
	return cont.CMContinue
}
