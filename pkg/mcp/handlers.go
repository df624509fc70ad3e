package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/session"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appCfg := s.cfg.AppConfig
	keys := appCfg.JobKeys()
	jobs := make([]map[string]interface{}, 0, len(keys))

	for _, key := range keys {
		job := appCfg.Jobs[key]
		jobInfo := map[string]interface{}{
			"key":             key,
			"target_url":      job.TargetURL,
			"selectors_count": len(job.Selectors),
			"multi_site":      job.IsMultiSite(),
			"pagination":      job.Options.HandlePagination,
		}
		if job.Schedule != "" {
			jobInfo["schedule"] = job.Schedule
		}

		if run, ok := s.jobs.Latest(key); ok {
			jobInfo["last_session_id"] = run.ID
			if s.jobs.IsRunning(key) {
				jobInfo["status"] = "running"
			}
		}

		jobs = append(jobs, jobInfo)
	}

	result := map[string]interface{}{
		"jobs":        jobs,
		"config_path": s.cfg.ConfigPath,
		"total_jobs":  len(jobs),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleRunJob handles the run_job tool
func (s *Server) handleRunJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobKey := request.GetString("job_key", "")
	if jobKey == "" {
		return mcp.NewToolResultError("job_key parameter is required"), nil
	}
	wait := request.GetBool("wait", false)

	job, err := s.cfg.AppConfig.Job(jobKey)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found. Available jobs: %v", jobKey, s.cfg.AppConfig.JobKeys())), nil
	}

	// Runs outlive the request, so they get their own context
	run, started, err := s.jobs.StartIfIdle(jobKey, func() (*session.Run, error) {
		return s.cfg.Engine.Start(context.Background(), crawler.Job{Key: jobKey, Config: &job})
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	if !started {
		result := map[string]interface{}{
			"status":     "already_running",
			"message":    "A session is already running for this job",
			"session_id": run.ID,
			"job_key":    jobKey,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	if !wait {
		result := map[string]interface{}{
			"status":     "started",
			"message":    "Session started",
			"session_id": run.ID,
			"job_key":    jobKey,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	final, err := run.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stopped waiting for session %s: %v", run.ID, err)), nil
	}
	return mcp.NewToolResultText(formatJSON(sessionSummary(final, false))), nil
}

// handleGetSession handles the get_session tool
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}
	includeResults := request.GetBool("include_results", false)

	sess, err := s.cfg.Sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session '%s' not found", sessionID)), nil
	}

	return mcp.NewToolResultText(formatJSON(sessionSummary(sess, includeResults))), nil
}

// handleListSessions handles the list_sessions tool
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.cfg.Sessions.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	summaries := make([]map[string]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sessionSummary(sess, false))
	}

	result := map[string]interface{}{
		"sessions":       summaries,
		"total_sessions": len(summaries),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStopSession handles the stop_session tool
func (s *Server) handleStopSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}

	if err := s.cfg.Engine.Stop(sessionID); err != nil {
		switch {
		case errors.Is(err, utils.ErrSessionNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("session '%s' is not active in this process", sessionID)), nil
		case errors.Is(err, utils.ErrSessionTerminal):
			return mcp.NewToolResultError(fmt.Sprintf("session '%s' has already finished", sessionID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop session: %v", err)), nil
	}

	result := map[string]interface{}{
		"status":     "stopped",
		"message":    "Stop requested; the session ends at its next page boundary",
		"session_id": sessionID,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleTestSelector handles the test_selector tool
func (s *Server) handleTestSelector(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetURL := request.GetString("url", "")
	if targetURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	sel := config.Selector{
		Name:      "preview",
		CSSQuery:  request.GetString("css_query", ""),
		PathQuery: request.GetString("path_query", ""),
		Regex:     request.GetString("regex", ""),
		Attribute: models.ParseAttribute(request.GetString("attribute", "")),
	}

	startTime := time.Now()
	res := s.cfg.Engine.TestSelector(ctx, targetURL, request.GetString("user_agent_profile", ""), sel)

	result := map[string]interface{}{
		"url":        targetURL,
		"success":    res.Success,
		"preview":    res.Preview,
		"elapsed_ms": time.Since(startTime).Milliseconds(),
	}
	if res.Error != "" {
		result["error"] = res.Error
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchResults handles the search_results tool
func (s *Server) handleSearchResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	sessionID := request.GetString("session_id", "")
	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	var sessions []models.Session
	if sessionID != "" {
		sess, err := s.cfg.Sessions.Get(sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session '%s' not found", sessionID)), nil
		}
		sessions = []models.Session{sess}
	} else {
		all, err := s.cfg.Sessions.List()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
		}
		sessions = all
	}

	results := searchRecords(query, sessions, maxResults)

	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	if sessionID != "" {
		response["session_id"] = sessionID
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchRecords returns record fields whose value contains query, in session and record order
func searchRecords(query string, sessions []models.Session, maxResults int) []map[string]interface{} {
	results := make([]map[string]interface{}, 0)
	queryLower := strings.ToLower(query)

	for _, sess := range sessions {
		for i, record := range sess.Results {
			fields := make([]string, 0, len(record))
			for field := range record {
				fields = append(fields, field)
			}
			sort.Strings(fields)

			for _, field := range fields {
				value := record[field]
				if value == nil || !strings.Contains(strings.ToLower(*value), queryLower) {
					continue
				}
				results = append(results, map[string]interface{}{
					"session_id": sess.ID,
					"job_key":    sess.JobKey,
					"record":     i,
					"field":      field,
					"snippet":    extractSnippet(*value, query, 150),
				})
				break // One hit per record
			}
			if len(results) >= maxResults {
				return results
			}
		}
	}
	return results
}

// sessionSummary flattens a session for tool output
func sessionSummary(sess models.Session, includeResults bool) map[string]interface{} {
	summary := map[string]interface{}{
		"session_id": sess.ID,
		"job_key":    sess.JobKey,
		"target_url": sess.TargetURL,
		"status":     sess.Status,
		"started_at": sess.StartedAt.Format(time.RFC3339),
		"progress":   sess.Progress,
		"records":    len(sess.Results),
		"errors":     sess.Errors,
	}
	if sess.EndedAt != nil {
		summary["ended_at"] = sess.EndedAt.Format(time.RFC3339)
		summary["duration_seconds"] = sess.EndedAt.Sub(sess.StartedAt).Seconds()
	}
	if includeResults {
		summary["results"] = sess.Results
	}
	return summary
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}

	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}

	return snippet
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
