package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/handlers"
	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// getJSON decodes a successful response into v, or turns an error body into an error.
func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return decodeResponse(resp, http.StatusOK, v)
}

func decodeResponse(resp *http.Response, want int, v any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("API error: %s", errorResp.Error)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// listScenarios returns scenario names in order and the name to file mapping.
func listScenarios(client *http.Client, baseURL string) ([]string, map[string]string, error) {
	var scenarioMap map[string]string
	if err := getJSON(client, baseURL+"/v1/scenarios", &scenarioMap); err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(scenarioMap))
	for name := range scenarioMap {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, scenarioMap, nil
}

func createRun(client *http.Client, baseURL, scenarioFile string) (*handlers.CreateRunResponse, error) {
	jsonData, err := json.Marshal(handlers.CreateRunRequest{Scenario: scenarioFile})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}
	resp, err := client.Post(baseURL+"/v1/runs", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var created handlers.CreateRunResponse
	if err := decodeResponse(resp, http.StatusAccepted, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func getRun(client *http.Client, baseURL string, runID uuid.UUID) (*state.SceneState, error) {
	var s state.SceneState
	if err := getJSON(client, fmt.Sprintf("%s/v1/runs/%s", baseURL, runID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func getEvents(client *http.Client, baseURL string, runID uuid.UUID) ([]state.Event, error) {
	var evs []state.Event
	if err := getJSON(client, fmt.Sprintf("%s/v1/runs/%s/events", baseURL, runID), &evs); err != nil {
		return nil, err
	}
	return evs, nil
}

// SSEEvent is one message from the run's event stream.
type SSEEvent struct {
	Type  string
	Event events.Event
}

// listenToSSE streams run events to eventChan until the stream ends or ctx
// is cancelled. eventChan is closed on return.
func listenToSSE(ctx context.Context, client *http.Client, baseURL string, runID uuid.UUID, eventChan chan<- SSEEvent) error {
	defer close(eventChan)

	url := fmt.Sprintf("%s/v1/events/runs/%s", baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}
	return readSSE(ctx, resp.Body, eventChan)
}

func readSSE(ctx context.Context, r io.Reader, eventChan chan<- SSEEvent) error {
	scanner := bufio.NewScanner(r)
	var current SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if current.Type != "" {
				select {
				case eventChan <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
				current = SSEEvent{}
			}
			continue
		}
		if t, ok := strings.CutPrefix(line, "event: "); ok {
			current.Type = t
		} else if data, ok := strings.CutPrefix(line, "data: "); ok {
			_ = json.Unmarshal([]byte(data), &current.Event)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
