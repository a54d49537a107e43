package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// client is a thin JSON client for the manual HTTP API of a running
// serve instance.
type client struct {
	base string
	http *http.Client
}

func newClient() (*client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return &client{
		base: serverBaseURL(cfg),
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *client) get(path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) post(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends the request and decodes the JSON response into out. Error
// responses surface the server's error message.
func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach the server at %s (is `mcp-brag serve` running?): %w", c.base, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("server: %s", errBody.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Wire shapes of the manual API responses the client commands consume.

type phaseProgress struct {
	Phase      string   `json:"phase"`
	IsCurrent  bool     `json:"is_current_phase"`
	Percentage *float64 `json:"percentage"`
}

type ingestionProgress struct {
	PhaseProgresses []phaseProgress `json:"phase_progresses"`
}

type ingestionStatusResponse struct {
	IngestionStatus string             `json:"ingestion_status"`
	Message         string             `json:"message"`
	Progress        *ingestionProgress `json:"progress"`
}

type sourceStats struct {
	SourceName  string `json:"source_name"`
	SourcePath  string `json:"source_path"`
	Status      string `json:"status"`
	VectorCount int    `json:"vector_count"`
}

// The full listing uses "files"; the single-source form uses "file".
type dataSourcesResponse struct {
	TotalFiles   int           `json:"total_files"`
	TotalVectors int           `json:"total_vectors"`
	Files        []sourceStats `json:"files"`
	File         []sourceStats `json:"file"`
}

type searchResponse struct {
	Query             string `json:"query"`
	ResultsCount      int    `json:"results_count"`
	SearchTimeSeconds string `json:"search_time_seconds"`
	Results           []struct {
		Text     string  `json:"text"`
		Source   string  `json:"source"`
		Distance float64 `json:"distance"`
	} `json:"results"`
}

type keywordSearchResponse struct {
	Query        string `json:"query"`
	ResultsCount int    `json:"results_count"`
	Results      []struct {
		Text   string  `json:"text"`
		Source string  `json:"source"`
		Score  float64 `json:"score"`
	} `json:"results"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
