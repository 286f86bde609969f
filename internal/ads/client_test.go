package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.AdsPlatformConfig{
		BaseURL:    srv.URL,
		APIVersion: "v19.0",
	})
	// Plain client so error-path tests see one request, not three.
	c.SetHTTPClient(&http.Client{Timeout: 5 * time.Second})
	return c, srv
}

func testAccount() domain.AdAccount {
	return domain.AdAccount{ID: "123", AccessToken: "tok-secret"}
}

func TestListEntitiesPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/act_123/campaigns", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-secret", r.URL.Query().Get("access_token"))
		if r.URL.Query().Get("after") == "" {
			fmt.Fprint(w, `{"data":[{"id":"c1","name":"Campaign One","status":"ACTIVE","objective":"OUTCOME_LEADS"}],
				"paging":{"next":"yes","cursors":{"after":"pg2"}}}`)
			return
		}
		require.Equal(t, "pg2", r.URL.Query().Get("after"))
		fmt.Fprint(w, `{"data":[{"id":"c2","name":"Campaign Two","status":"PAUSED","objective":"OUTCOME_SALES"}],"paging":{}}`)
	})
	mux.HandleFunc("/v19.0/act_123/adsets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"s1","name":"Set","status":"ACTIVE","campaign_id":"c1","optimization_goal":"CONVERSATIONS"}],"paging":{}}`)
	})
	mux.HandleFunc("/v19.0/act_123/ads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"a1","name":"Ad","status":"ACTIVE","adset_id":"s1","campaign_id":"c1","creative":{"id":"cr1"}}],"paging":{}}`)
	})

	client, _ := newTestClient(t, mux)
	tree, err := client.ListEntities(context.Background(), testAccount())
	require.NoError(t, err)

	require.Len(t, tree.Campaigns, 2)
	assert.Equal(t, "c1", tree.Campaigns[0].ID)
	assert.Equal(t, domain.EntityActive, tree.Campaigns[0].Status)
	assert.Equal(t, domain.EntityPaused, tree.Campaigns[1].Status)

	require.Len(t, tree.AdSets, 1)
	assert.Equal(t, "CONVERSATIONS", tree.AdSets[0].OptimizationGoal)
	assert.Equal(t, "123", tree.AdSets[0].AccountID)

	require.Len(t, tree.Ads, 1)
	assert.Equal(t, "cr1", tree.Ads[0].CreativeID)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.ErrorType
		wantCode int
	}{
		{
			name:     "expired token under 400",
			status:   400,
			body:     `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`,
			wantKind: domain.ErrTypeTokenInvalid,
			wantCode: 190,
		},
		{
			name:     "unauthorized",
			status:   401,
			body:     `{"error":{"message":"bad token"}}`,
			wantKind: domain.ErrTypeTokenInvalid,
		},
		{
			name:     "rate limit by status",
			status:   429,
			body:     `{"error":{"message":"too many calls"}}`,
			wantKind: domain.ErrTypeRateLimited,
		},
		{
			name:     "rate limit by code",
			status:   400,
			body:     `{"error":{"message":"User request limit reached","code":17}}`,
			wantKind: domain.ErrTypeRateLimited,
			wantCode: 17,
		},
		{
			name:     "server error",
			status:   500,
			body:     `{"error":{"message":"internal"}}`,
			wantKind: domain.ErrTypeNetwork,
		},
		{
			name:     "bad request",
			status:   400,
			body:     `{"error":{"message":"unsupported field"}}`,
			wantKind: domain.ErrTypeData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.ListEntities(context.Background(), testAccount())
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, Classify(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(429)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	}))

	_, err := client.ListEntities(context.Background(), testAccount())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrTypeRateLimited, apiErr.Kind)
	assert.Equal(t, 120*time.Second, apiErr.RetryAfter)
}

func TestSubmitReport(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v19.0/act_123/insights", r.URL.Path)
		require.Equal(t, "ad", r.URL.Query().Get("level"))
		require.Equal(t, "7", r.URL.Query().Get("time_increment"))
		require.JSONEq(t, `{"since":"2026-06-01","until":"2026-06-08"}`, r.URL.Query().Get("time_range"))
		fmt.Fprint(w, `{"report_run_id":"rep-9"}`)
	}))

	window := ReportWindow{
		Since: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
	}
	id, err := client.SubmitReport(context.Background(), testAccount(), window, GranularityWeek)
	require.NoError(t, err)
	assert.Equal(t, "rep-9", id)
}

func TestSubmitReportDailyIncrement(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("time_increment"))
		fmt.Fprint(w, `{"report_run_id":"rep-d"}`)
	}))

	_, err := client.SubmitReport(context.Background(), testAccount(), ReportWindow{
		Since: time.Now().AddDate(0, 0, -14),
		Until: time.Now(),
	}, GranularityDay)
	require.NoError(t, err)
}

func TestPollReportStatusMapping(t *testing.T) {
	tests := []struct {
		platform string
		want     ReportStatus
	}{
		{"Job Completed", ReportReady},
		{"Job Failed", ReportFailed},
		{"Job Skipped", ReportFailed},
		{"Job Not Started", ReportQueued},
		{"Job Running", ReportRunning},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"async_status":             tt.platform,
					"async_percent_completion": 50,
				})
			}))

			status, err := client.PollReport(context.Background(), testAccount(), "rep-9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestFetchReportRows(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v19.0/rep-9/insights", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"ad_id":"a1","date_start":"2026-06-01","spend":"120.50","impressions":"10000","reach":"8000",
			 "frequency":"1.25","ctr":"1.8","inline_link_click_ctr":"0.9","cpm":"12.05",
			 "quality_ranking":"above_average","engagement_rate_ranking":"average","conversion_rate_ranking":"below_average_35",
			 "actions":[{"action_type":"onsite_conversion.messaging_conversation_started_7d","value":"14"}]}
		],"paging":{}}`)
	}))

	rows, err := client.FetchReport(context.Background(), testAccount(), "rep-9")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "a1", row.AdID)
	assert.Equal(t, 120.50, row.Spend)
	assert.Equal(t, int64(10000), row.Impressions)
	require.Len(t, row.Actions, 1)
	assert.Equal(t, 14.0, row.Actions[0].Value)

	rec, err := row.WeeklyRecord("123")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), rec.WeekStart)
	assert.Equal(t, 3.0, rec.QualityRanking)
	assert.Equal(t, 2.0, rec.EngagementRanking)
	assert.Equal(t, 1.0, rec.ConversionRanking)
}

func TestWeeklyRecordRejectsBadDate(t *testing.T) {
	row := ReportRow{AdID: "a1", DateStart: "garbage"}
	_, err := row.WeeklyRecord("123")
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeData, Classify(err))
}

func TestClassifyUnwrapped(t *testing.T) {
	assert.Equal(t, domain.ErrTypeUnknown, Classify(fmt.Errorf("boom")))
	assert.Equal(t, domain.ErrTypeNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, domain.ErrorType(""), Classify(nil))

	wrapped := fmt.Errorf("step failed: %w", &APIError{Kind: domain.ErrTypeTokenInvalid})
	assert.Equal(t, domain.ErrTypeTokenInvalid, Classify(wrapped))
}

func TestRankingScore(t *testing.T) {
	assert.Equal(t, 3.0, RankingScore("above_average"))
	assert.Equal(t, 2.0, RankingScore("average"))
	assert.Equal(t, 1.0, RankingScore("below_average_10"))
	assert.Equal(t, 0.0, RankingScore(""))
	assert.Equal(t, 0.0, RankingScore("unknown"))
}
