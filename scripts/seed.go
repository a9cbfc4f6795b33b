// Seed script for loading demo data through the HTTP API.
// Run the server first, then: go run ./scripts/seed.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const demoAgent = "demo-agent-1"

type ingestResponse struct {
	MemoryID       string   `json:"memory_id"`
	Category       any      `json:"category"`
	NewBeliefIDs   []string `json:"new_belief_ids"`
	BeliefAnalysis string   `json:"belief_analysis"`
}

func main() {
	envFile := os.Getenv("DOXA_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	baseURL := os.Getenv("DOXA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if err := ping(baseURL); err != nil {
		log.Fatalf("server not reachable at %s: %v", baseURL, err)
	}
	log.Infof("connected to %s", baseURL)

	observations := []struct {
		content string
		source  string
	}{
		{"I prefer dark mode in all my tools", "onboarding"},
		{"I like responses formatted as bullet points", "conversation-001"},
		{"I am a software engineer working on backend systems", "profile"},
		{"My primary programming language is Go", "conversation-002"},
		{"I only use open source tools, never proprietary ones", "conversation-003"},
		{"I decided to use PostgreSQL for the new project", "conversation-004"},
		{"I live in Austin", "conversation-005"},
		{"Actually, I moved to Denver last month", "conversation-006"},
	}

	beliefIDs := make([]string, 0, len(observations))
	for _, obs := range observations {
		res, err := ingest(baseURL, obs.content, obs.source)
		if err != nil {
			log.Warnf("ingest failed for %q: %v", obs.content, err)
			continue
		}
		log.Infof("stored %s (%s): %d new belief(s)", res.MemoryID, res.BeliefAnalysis, len(res.NewBeliefIDs))
		beliefIDs = append(beliefIDs, res.NewBeliefIDs...)
	}

	// Demo relationship: the last two observations contradict; link them so
	// the graph endpoints have something to show.
	if len(beliefIDs) >= 2 {
		a, b := beliefIDs[len(beliefIDs)-2], beliefIDs[len(beliefIDs)-1]
		if err := relate(baseURL, b, a, "supersedes", 1.0); err != nil {
			log.Warnf("relationship creation failed: %v", err)
		} else {
			log.Infof("linked %s supersedes %s", b, a)
		}
	}

	log.Infof("seeded %d observations for agent %s", len(observations), demoAgent)
}

func ping(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func ingest(baseURL, content, source string) (*ingestResponse, error) {
	body, _ := json.Marshal(map[string]any{
		"agent_id": demoAgent,
		"content":  content,
		"source":   source,
	})

	resp, err := http.Post(baseURL+"/v1/ingest", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest returned %d", resp.StatusCode)
	}

	var res ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func relate(baseURL, sourceID, targetID, relType string, strength float64) error {
	body, _ := json.Marshal(map[string]any{
		"agent_id":         demoAgent,
		"source_belief_id": sourceID,
		"target_belief_id": targetID,
		"type":             relType,
		"strength":         strength,
	})

	resp, err := http.Post(baseURL+"/v1/relationships", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("relationship returned %d", resp.StatusCode)
	}
	return nil
}
