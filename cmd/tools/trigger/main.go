package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type scanStarted struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	Poll    string `json:"poll"`
	Error   string `json:"error"`
}

type jobStatus struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Duration string         `json:"duration"`
	Result   map[string]any `json:"result"`
	Error    string         `json:"error"`
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8084", "API base URL")
	adminSecretFlag := flag.String("admin-secret", "", "Admin secret (or use ADMIN_SECRET env)")
	mode := flag.String("mode", "daily", "scan mode: daily or deep")
	target := flag.Int("target", 0, "drafts to accept before stopping (0 = mode default)")
	wait := flag.Bool("wait", false, "poll the job until it finishes")
	pollEvery := flag.Duration("poll-every", 5*time.Second, "poll interval with -wait")
	flag.Parse()

	adminSecret := strings.TrimSpace(*adminSecretFlag)
	if adminSecret == "" {
		adminSecret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	}
	if adminSecret == "" {
		exitErr(errors.New("missing admin secret: use -admin-secret or ADMIN_SECRET env"))
	}

	client := &http.Client{Timeout: 30 * time.Second}
	base := strings.TrimRight(*baseURL, "/")

	body := fmt.Sprintf(`{"mode":%q,"target_count":%d}`, *mode, *target)
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/scan", strings.NewReader(body))
	if err != nil {
		exitErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		exitErr(err)
	}
	var started scanStarted
	decodeErr := json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()
	if decodeErr != nil {
		exitErr(fmt.Errorf("decode failed: %w", decodeErr))
	}
	if resp.StatusCode != http.StatusAccepted {
		exitErr(fmt.Errorf("http %d: %s", resp.StatusCode, started.Error))
	}

	fmt.Printf("Scan started: job %s\n", started.JobID)
	if !*wait {
		fmt.Printf("Poll: %s%s\n", base, started.Poll)
		return
	}

	for {
		time.Sleep(*pollEvery)
		job, err := fetchJob(client, base+started.Poll, adminSecret)
		if err != nil {
			exitErr(err)
		}
		if job.Status == "running" {
			fmt.Println("still running...")
			continue
		}
		if job.Error != "" {
			exitErr(fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Error))
		}
		fmt.Printf("Job %s %s in %s\n", job.ID, job.Status, job.Duration)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(job.Result); err != nil {
			exitErr(err)
		}
		return
	}
}

func fetchJob(client *http.Client, url, adminSecret string) (*jobStatus, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var job jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, job.Error)
	}
	return &job, nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
