package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/httpretry"
)

// Client is the HTTP implementation of the ads platform API.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new ads platform client.
func NewClient(cfg config.AdsPlatformConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type platformError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// doGet performs an authenticated GET and decodes the JSON body into out.
// Failures come back as *APIError with the classified Kind.
func (c *Client) doGet(ctx context.Context, token, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	reqURL := fmt.Sprintf("%s/%s%s?%s", c.baseURL, c.apiVersion, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: domain.ErrTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: domain.ErrTypeNetwork, Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe platformError
		_ = json.Unmarshal(body, &pe)
		apiErr := &APIError{
			Kind:       kindForStatus(resp.StatusCode, pe.Error.Code),
			StatusCode: resp.StatusCode,
			Code:       pe.Error.Code,
			Message:    pe.Error.Message,
		}
		if apiErr.Kind == domain.ErrTypeRateLimited {
			apiErr.RetryAfter = httpretry.RetryAfter(resp)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &APIError{
				Kind:       domain.ErrTypeData,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("parse response: %v", err),
			}
		}
	}
	return nil
}

// doPost performs an authenticated form POST and decodes the JSON body into out.
func (c *Client) doPost(ctx context.Context, token, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	reqURL := fmt.Sprintf("%s/%s%s?%s", c.baseURL, c.apiVersion, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: domain.ErrTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: domain.ErrTypeNetwork, Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe platformError
		_ = json.Unmarshal(body, &pe)
		apiErr := &APIError{
			Kind:       kindForStatus(resp.StatusCode, pe.Error.Code),
			StatusCode: resp.StatusCode,
			Code:       pe.Error.Code,
			Message:    pe.Error.Message,
		}
		if apiErr.Kind == domain.ErrTypeRateLimited {
			apiErr.RetryAfter = httpretry.RetryAfter(resp)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &APIError{
				Kind:       domain.ErrTypeData,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("parse response: %v", err),
			}
		}
	}
	return nil
}

type pagedResponse struct {
	Data   json.RawMessage `json:"data"`
	Paging struct {
		Next    string `json:"next"`
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
}

// listPages walks the cursor pagination of one edge, appending each page's
// raw data to the decode callback.
func (c *Client) listPages(ctx context.Context, token, path string, params url.Values, decode func(json.RawMessage) error) error {
	after := ""
	for {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("limit", "200")
		if after != "" {
			p.Set("after", after)
		}

		var page pagedResponse
		if err := c.doGet(ctx, token, path, p, &page); err != nil {
			return err
		}
		if len(page.Data) > 0 {
			if err := decode(page.Data); err != nil {
				return err
			}
		}
		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			return nil
		}
		after = page.Paging.Cursors.After
	}
}

// ListEntities fetches one account's campaign/adset/ad registries.
func (c *Client) ListEntities(ctx context.Context, account domain.AdAccount) (*EntityTree, error) {
	tree := &EntityTree{}
	acct := "/act_" + account.ID

	err := c.listPages(ctx, account.AccessToken, acct+"/campaigns",
		url.Values{"fields": {"id,name,status,objective"}},
		func(data json.RawMessage) error {
			var rows []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				Status    string `json:"status"`
				Objective string `json:"objective"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				return &APIError{Kind: domain.ErrTypeData, Message: fmt.Sprintf("parse campaigns: %v", err)}
			}
			for _, r := range rows {
				tree.Campaigns = append(tree.Campaigns, domain.Campaign{
					ID: r.ID, AccountID: account.ID, Name: r.Name,
					Status: normalizeStatus(r.Status), Objective: r.Objective,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	err = c.listPages(ctx, account.AccessToken, acct+"/adsets",
		url.Values{"fields": {"id,name,status,campaign_id,optimization_goal"}},
		func(data json.RawMessage) error {
			var rows []struct {
				ID               string `json:"id"`
				Name             string `json:"name"`
				Status           string `json:"status"`
				CampaignID       string `json:"campaign_id"`
				OptimizationGoal string `json:"optimization_goal"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				return &APIError{Kind: domain.ErrTypeData, Message: fmt.Sprintf("parse adsets: %v", err)}
			}
			for _, r := range rows {
				tree.AdSets = append(tree.AdSets, domain.AdSet{
					ID: r.ID, CampaignID: r.CampaignID, AccountID: account.ID,
					Name: r.Name, Status: normalizeStatus(r.Status),
					OptimizationGoal: r.OptimizationGoal,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list adsets: %w", err)
	}

	err = c.listPages(ctx, account.AccessToken, acct+"/ads",
		url.Values{"fields": {"id,name,status,adset_id,campaign_id,creative{id}"}},
		func(data json.RawMessage) error {
			var rows []struct {
				ID         string `json:"id"`
				Name       string `json:"name"`
				Status     string `json:"status"`
				AdSetID    string `json:"adset_id"`
				CampaignID string `json:"campaign_id"`
				Creative   struct {
					ID string `json:"id"`
				} `json:"creative"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				return &APIError{Kind: domain.ErrTypeData, Message: fmt.Sprintf("parse ads: %v", err)}
			}
			for _, r := range rows {
				tree.Ads = append(tree.Ads, domain.AdEntity{
					ID: r.ID, AdSetID: r.AdSetID, CampaignID: r.CampaignID,
					AccountID: account.ID, CreativeID: r.Creative.ID,
					Name: r.Name, Status: normalizeStatus(r.Status),
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}

	return tree, nil
}

// SubmitReport starts an async insights report and returns the platform's
// report run id.
func (c *Client) SubmitReport(ctx context.Context, account domain.AdAccount, window ReportWindow, granularity Granularity) (string, error) {
	timeRange := fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		window.Since.Format("2006-01-02"), window.Until.Format("2006-01-02"))

	increment := "7"
	if granularity == GranularityDay {
		increment = "1"
	}

	params := url.Values{
		"level":          {"ad"},
		"time_range":     {timeRange},
		"time_increment": {increment},
		"fields": {"ad_id,spend,impressions,reach,frequency,ctr,inline_link_click_ctr,cpm," +
			"quality_ranking,engagement_rate_ranking,conversion_rate_ranking,actions"},
	}

	var out struct {
		ReportRunID string `json:"report_run_id"`
	}
	if err := c.doPost(ctx, account.AccessToken, "/act_"+account.ID+"/insights", params, &out); err != nil {
		return "", fmt.Errorf("submit report: %w", err)
	}
	if out.ReportRunID == "" {
		return "", &APIError{Kind: domain.ErrTypeData, Message: "submit report: empty report_run_id"}
	}
	return out.ReportRunID, nil
}

// PollReport reads the platform-side status of an async report job.
func (c *Client) PollReport(ctx context.Context, account domain.AdAccount, reportID string) (ReportStatus, error) {
	var out struct {
		AsyncStatus     string `json:"async_status"`
		PercentComplete int    `json:"async_percent_completion"`
	}
	if err := c.doGet(ctx, account.AccessToken, "/"+reportID, nil, &out); err != nil {
		return "", fmt.Errorf("poll report: %w", err)
	}

	switch out.AsyncStatus {
	case "Job Completed":
		return ReportReady, nil
	case "Job Failed", "Job Skipped":
		return ReportFailed, nil
	case "Job Not Started":
		return ReportQueued, nil
	default:
		return ReportRunning, nil
	}
}

// FetchReport downloads the rows of a completed report, following pagination.
func (c *Client) FetchReport(ctx context.Context, account domain.AdAccount, reportID string) ([]ReportRow, error) {
	var rows []ReportRow
	err := c.listPages(ctx, account.AccessToken, "/"+reportID+"/insights", nil,
		func(data json.RawMessage) error {
			var page []ReportRow
			if err := json.Unmarshal(data, &page); err != nil {
				return &APIError{Kind: domain.ErrTypeData, Message: fmt.Sprintf("parse report rows: %v", err)}
			}
			rows = append(rows, page...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	return rows, nil
}

func normalizeStatus(s string) domain.EntityStatus {
	switch s {
	case "ACTIVE":
		return domain.EntityActive
	case "PAUSED", "CAMPAIGN_PAUSED", "ADSET_PAUSED":
		return domain.EntityPaused
	case "ARCHIVED":
		return domain.EntityArchived
	case "DELETED":
		return domain.EntityDeleted
	default:
		return domain.EntityStatus(lowerASCII(s))
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
