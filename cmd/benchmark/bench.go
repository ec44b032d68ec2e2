package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const appPort = 8081

var (
	thinkingBody = []byte(`{"tenant_id":"demo","request":{"model":"claude-sonnet-4-20250514","thinking":{"type":"enabled","budget_tokens":2048},"messages":[{"role":"user","content":"Prove it"}]}}`)
	visionBody   = []byte(`{"tenant_id":"demo","request":{"messages":[{"role":"user","content":[{"type":"text","text":"What is this?"},{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}]}]}}`)
	plainBody    = []byte(`{"tenant_id":"demo","request":{"messages":[{"role":"user","content":"Hello"}]}}`)
	failureBody  = []byte(`{"status_code":503,"error_type":"server_error"}`)
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 500, "Requests per second")
	scenario := flag.String("scenario", "route", "route, resolve or fallback")
	flag.Parse()

	base := fmt.Sprintf("http://localhost:%d", appPort)
	dbFile := "bench.db"
	dsn := "file:" + dbFile + "?_foreign_keys=on"
	defer func() {
		_ = os.Remove(dbFile)
	}()

	fmt.Println("Building binaries...")
	for _, target := range []string{"server", "seed"} {
		build := exec.Command("go", "build", "-o", "bin/"+target, "./cmd/"+target)
		build.Stdout = os.Stdout
		build.Stderr = os.Stderr
		if err := build.Run(); err != nil {
			log.Fatalf("Failed to build %s: %v", target, err)
		}
	}

	seed := exec.Command("./bin/seed", "-dsn", dsn)
	seed.Stderr = os.Stderr
	if err := seed.Run(); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server")
	cmd.Env = append(os.Environ(),
		"SERVER_PORT="+strconv.Itoa(appPort),
		"DATABASE_DSN="+dsn,
		"LOG_LEVEL=error",
		"RATE_LIMIT_REQUESTS_PER_SECOND=0",
	)

	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()

	waitForApp(base + "/health")

	targeter, err := targeterFor(*scenario, base)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Running %s benchmark: %s duration, %d req/s\n", *scenario, *duration, *rate)

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, *scenario) {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("Status codes:")
	codes := make([]string, 0, len(metrics.StatusCodes))
	for code := range metrics.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("  %s: %d\n", code, metrics.StatusCodes[code])
	}
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5):")
		for i, msg := range metrics.Errors {
			if i == 5 {
				break
			}
			fmt.Println(msg)
		}
	}
}

// targeterFor returns a targeter cycling through the calls of a scenario.
func targeterFor(scenario, base string) (vegeta.Targeter, error) {
	header := http.Header{"Content-Type": []string{"application/json"}}
	var n atomic.Uint64

	switch scenario {
	case "route":
		bodies := [][]byte{thinkingBody, visionBody, plainBody}
		return func(t *vegeta.Target) error {
			t.Method = http.MethodPost
			t.URL = base + "/v1/route"
			t.Body = bodies[n.Add(1)%uint64(len(bodies))]
			t.Header = header
			return nil
		}, nil

	case "resolve":
		models := []string{"deepseek-chat", "gpt-4o", "claude-sonnet-4-20250514"}
		return func(t *vegeta.Target) error {
			t.Method = http.MethodGet
			t.URL = base + "/v1/models/" + models[n.Add(1)%uint64(len(models))] + "/resolve"
			t.Header = header
			return nil
		}, nil

	case "fallback":
		// Even hits open a context, odd hits report a failure on the
		// context opened just before.
		return func(t *vegeta.Target) error {
			i := n.Add(1)
			id := "bench-" + strconv.FormatUint(i/2, 10)
			t.Method = http.MethodPost
			t.Header = header
			if i%2 == 0 {
				t.URL = base + "/v1/fallback/contexts"
				t.Body = []byte(`{"request_id":"` + id + `","chain_id":"default"}`)
			} else {
				t.URL = base + "/v1/fallback/contexts/" + id + "/next"
				t.Body = failureBody
			}
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown scenario %q", scenario)
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}
