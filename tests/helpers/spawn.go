package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal"
	"github.com/hbomb79/Harvest/pkg/logger"
)

var (
	mutex   = sync.Mutex{}
	portInc = 42067

	// shouldOutputHarvestLogs controls whether the logs from the spawned Harvest services
	// are emitted at verbose level.
	shouldOutputHarvestLogs = os.Getenv("OUTPUT_HARVEST_LOGS") != ""
)

func getNextPort() int {
	mutex.Lock()
	defer mutex.Unlock()

	portInc++
	return portInc
}

const (
	EnvAPIHostAddr        = "API_HOST_ADDR"
	EnvStorageBasePath    = "STORAGE_BASE_PATH"
	EnvDBPath             = "DB_PATH"
	EnvDBDisabled         = "DB_DISABLED"
	EnvMaxConcurrentTasks = "ACQUISITION_MAX_CONCURRENT_TASKS"
	EnvTaskTimeoutSeconds = "ACQUISITION_TASK_TIMEOUT_SECONDS"
	EnvLogLevel           = "LOG_LEVEL"
)

// HarvestServiceRequest describes the environment a spawned Harvest
// service should be configured with.
type HarvestServiceRequest struct {
	environmentVariables map[string]string
}

func NewHarvestServiceRequest() HarvestServiceRequest {
	return HarvestServiceRequest{environmentVariables: make(map[string]string)}
}

func (req HarvestServiceRequest) WithEnvironmentVariable(key, value string) HarvestServiceRequest {
	req.environmentVariables[key] = value
	return req
}

func (req HarvestServiceRequest) WithJournalDisabled() HarvestServiceRequest {
	return req.WithEnvironmentVariable(EnvDBDisabled, "true")
}

func (req HarvestServiceRequest) WithMaxConcurrentTasks(n int) HarvestServiceRequest {
	return req.WithEnvironmentVariable(EnvMaxConcurrentTasks, fmt.Sprint(n))
}

func (req HarvestServiceRequest) String() string {
	return fmt.Sprintf("HarvestServiceRequest{env=%v}", req.environmentVariables)
}

// SpawnHarvest starts a Harvest instance inside the test process, configured
// via the environment as described by the request. Storage and the journal
// database are placed in temporary directories unless the request says
// otherwise. This function will BLOCK until the instance is accepting HTTP
// requests (or, if the timeout is exceeded, the test is failed).
//
// The environment is modified using t.Setenv, so tests using this helper
// cannot be run in parallel.
func SpawnHarvest(t *testing.T, req HarvestServiceRequest) *TestService {
	port := getNextPort()
	t.Logf("Spawning Harvest on port %d for request %s\n", port, req)

	defaults := map[string]string{
		EnvAPIHostAddr:     fmt.Sprintf("127.0.0.1:%d", port),
		EnvStorageBasePath: t.TempDir(),
		EnvDBPath:          filepath.Join(t.TempDir(), "journal.db"),
		EnvLogLevel:        "error",
	}
	if shouldOutputHarvestLogs {
		defaults[EnvLogLevel] = "verbose"
	}
	for k, v := range defaults {
		if _, ok := req.environmentVariables[k]; !ok {
			req.environmentVariables[k] = v
		}
	}
	for k, v := range req.environmentVariables {
		t.Setenv(k, v)
	}

	config, err := internal.LoadConfig("")
	if err != nil {
		t.Fatalf("failed to provision Harvest instance: invalid configuration: %s", err)
		return nil
	}

	harvest, err := internal.New(*config)
	if err != nil {
		t.Fatalf("failed to provision Harvest instance: %s", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- harvest.Run(ctx) }()

	t.Cleanup(func() {
		t.Logf("Stopping Harvest instance (port %d)...", port)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Logf("[WARNING] Harvest instance exited with error: %s", err)
			}
		case <-time.After(10 * time.Second):
			t.Logf("[WARNING] Harvest instance (port %d) did not stop within 10s", port)
		}

		if t.Failed() && !shouldOutputHarvestLogs {
			t.Log("\n**HINT: Supply the 'OUTPUT_HARVEST_LOGS' environment variable to see the logs from spawned Harvest instances")
		}

		// Instances share the process wide logger
		logger.SetMinLoggingLevel(logger.INFO.Level())
	})

	srv := &TestService{Port: port, StoragePath: req.environmentVariables[EnvStorageBasePath]}
	if err := srv.waitForHealthy(50*time.Millisecond, 5*time.Second); err != nil {
		t.Fatalf("failed to provision Harvest instance: service did not become healthy before timeout (last error %+v)", err)
		return nil
	}

	t.Logf("Harvest instance (port %d) became healthy", port)
	return srv
}
