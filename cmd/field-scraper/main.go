package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	applog "github.com/Sriram-PR/field-scraper/pkg/log"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/field-scraper/pkg/watch"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-jobs":
		runListJobs(os.Args[2:])
	case "sessions":
		runSessions(os.Args[2:])
	case "test-selector":
		runTestSelector(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("field-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `field-scraper - Selector-driven field extraction crawler

Usage:
  field-scraper <command> [options]

Commands:
  run            Run one or more configured jobs
  watch          Re-run jobs on a schedule
  validate       Validate configuration file
  list-jobs      List available job keys
  sessions       Show sessions recorded in the state directory
  test-selector  Preview what a selector extracts from a page
  mcp-server     Start MCP server for AI tool integration
  version        Show version info

Run 'field-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	return config.Load(path)
}

// parseJobKeys resolves -job / -jobs / -all-jobs into a key list. nil with allJobs means every job.
func parseJobKeys(single, list string, allJobs bool) ([]string, error) {
	switch {
	case allJobs:
		return nil, nil
	case list != "":
		var keys []string
		for _, k := range strings.Split(list, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("-jobs is empty")
		}
		return keys, nil
	case single != "":
		return []string{single}, nil
	}
	return nil, fmt.Errorf("one of -job, -jobs, or --all-jobs is required")
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	return appCfg
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// handleSignals stops active sessions on the first SIGINT/SIGTERM and exits on the second.
// The returned func unregisters the handler.
func handleSignals(engine *crawler.Engine, log *logrus.Logger, onStop func()) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Stopping active sessions...", sig)
			stopped := engine.StopAll()
			log.Infof("Stop requested for %d session(s)", len(stopped))
			if onStop != nil {
				onStop()
			}
		case <-done:
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: Renderer:%s, SessionStore:%s, StateDir:%s, MaxSessions:%d",
		appCfg.Renderer, appCfg.SessionStore, appCfg.StateDir, appCfg.MaxConcurrentSessions)
	log.Infof("Global Config: DefaultDelay:%v, MaxReqPerHost:%d",
		appCfg.DefaultDelayPerHost, appCfg.MaxRequestsPerHost)
	log.Infof("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Global Config Timeouts: PageLoad:%v, DynamicWait:%v, PaginationSettle:%v",
		appCfg.PageLoadTimeout, appCfg.DynamicContentWait, appCfg.PaginationSettle)
	log.Infof("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}

// runRun handles the run subcommand
func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	jobKey := fs.String("job", "", "Job key from config (single job)")
	jobs := fs.String("jobs", "", "Comma-separated job keys to run concurrently")
	allJobs := fs.Bool("all-jobs", false, "Run all configured jobs")
	output := fs.String("output", "", "Write extracted records as JSON to this file ('-' for stdout)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper run [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  field-scraper run -job product_list -output products.json\n")
		fmt.Fprintf(os.Stderr, "  field-scraper run -jobs product_list,news --loglevel debug\n")
		fmt.Fprintf(os.Stderr, "  field-scraper run --all-jobs\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	jobKeys, err := parseJobKeys(*jobKey, *jobs, *allJobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	log := applog.NewLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, log)
	logAppConfig(appCfg, log)
	if *allJobs {
		jobKeys = orchestrate.GetAllJobKeys(appCfg)
		log.Infof("All jobs mode: found %d jobs", len(jobKeys))
	}
	if err := orchestrate.ValidateJobKeys(appCfg, jobKeys); err != nil {
		log.Fatalf("Invalid job keys: %v", err)
	}
	startPprof(*pprofAddr, log)

	os.Exit(executeRun(appCfg, jobKeys, *output, log, os.Stdout))
}

// executeRun runs jobKeys and writes their records. Returns the exit code.
func executeRun(appCfg *config.AppConfig, jobKeys []string, output string, log *logrus.Logger, stdout io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Initializing components...")
	rt, err := orchestrate.NewRuntime(ctx, appCfg, log.WithField("component", "run"))
	if err != nil {
		log.Errorf("Failed to initialize: %v", err)
		return 1
	}
	defer rt.Close()

	stopSignals := handleSignals(rt.Engine, log, nil)
	defer stopSignals()

	results := orchestrate.NewOrchestrator(rt.Engine, appCfg, jobKeys, log.WithField("component", "orchestrator")).Run(ctx)

	exitCode := 0
	export := make(map[string]models.Session, len(results))
	for _, r := range results {
		if !r.Success() {
			exitCode = 1
		}
		if r.SessionID == "" {
			continue
		}
		sess, err := rt.Sessions.Get(r.SessionID)
		if err != nil {
			log.Errorf("Reading session %s: %v", r.SessionID, err)
			exitCode = 1
			continue
		}
		export[r.JobKey] = sess
	}

	if output != "" {
		if err := writeResults(output, export, stdout); err != nil {
			log.Errorf("Writing results: %v", err)
			return 1
		}
		if output != "-" {
			log.Infof("Results written to %s", output)
		}
	}
	return exitCode
}

// writeResults writes per-job records as JSON. A single job writes its record array directly.
func writeResults(path string, sessions map[string]models.Session, stdout io.Writer) error {
	byJob := make(map[string][]models.Record, len(sessions))
	for key, sess := range sessions {
		records := sess.Results
		if records == nil {
			records = []models.Record{}
		}
		byJob[key] = records
	}

	var payload interface{} = byJob
	if len(byJob) == 1 {
		for _, records := range byJob {
			payload = records
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	jobKey := fs.String("job", "", "Job key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *jobKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, jobKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Global settings first, without jobs, so each job is reported on its own
	global := *appCfg
	global.Jobs = nil
	warnings, err := global.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := appCfg.JobKeys()
	if jobKey != "" {
		if _, ok := appCfg.Jobs[jobKey]; !ok {
			fmt.Fprintf(stderr, "Error: job '%s' not found in config\n", jobKey)
			return 1
		}
		keys = []string{jobKey}
	}

	hasError := false
	for _, key := range keys {
		job := appCfg.Jobs[key]
		jobWarnings, err := job.Validate()
		if err == nil && job.Schedule != "" {
			if _, schedErr := watch.ParseInterval(job.Schedule); schedErr != nil {
				err = fmt.Errorf("schedule: %v", schedErr)
			}
		}
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range jobWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	jobKey := fs.String("job", "", "Job key from config (single job)")
	jobs := fs.String("jobs", "", "Comma-separated job keys")
	allJobs := fs.Bool("all-jobs", false, "Watch all configured jobs")
	interval := fs.String("interval", "24h", "Default run interval (e.g., 30m, 1h, 24h, 7d); a job's schedule overrides it")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  field-scraper watch -job product_list --interval 6h\n")
		fmt.Fprintf(os.Stderr, "  field-scraper watch --all-jobs --interval 1d\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	jobKeys, err := parseJobKeys(*jobKey, *jobs, *allJobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	executeWatch(*configFile, jobKeys, *allJobs, *interval, *logLevel)
}

// executeWatch runs the watch scheduler
func executeWatch(configFile string, jobKeys []string, allJobs bool, intervalStr, logLevelStr string) {
	log := applog.NewLogger(logLevelStr, os.Stderr)

	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}
	log.Infof("Default watch interval: %s", watch.FormatInterval(interval))

	appCfg := loadAndValidateConfig(configFile, log)
	if allJobs {
		jobKeys = orchestrate.GetAllJobKeys(appCfg)
		log.Infof("All jobs mode: found %d jobs", len(jobKeys))
	}

	rt, err := orchestrate.NewRuntime(context.Background(), appCfg, log.WithField("component", "watch"))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer rt.Close()

	scheduler, err := watch.NewScheduler(rt.Engine, appCfg, jobKeys, interval, log.WithField("component", "watch"))
	if err != nil {
		log.Fatalf("Invalid watch setup: %v", err)
	}

	stopSignals := handleSignals(rt.Engine, log, scheduler.Stop)
	defer stopSignals()

	// Blocks until stopped
	if err := scheduler.Run(); err != nil {
		log.Errorf("Watch scheduler error: %v", err)
		return
	}

	log.Info("Watch mode stopped")
}

// runListJobs handles the list-jobs subcommand
func runListJobs(args []string) {
	fs := flag.NewFlagSet("list-jobs", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper list-jobs [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doListJobs(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doListJobs lists jobs and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListJobs(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Jobs in %s:\n\n", configPath)
	for _, key := range appCfg.JobKeys() {
		job := appCfg.Jobs[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		fmt.Fprintf(stdout, "    Target: %s\n", job.TargetURL)
		fmt.Fprintf(stdout, "    Selectors: %d\n", len(job.Selectors))
		if job.IsMultiSite() {
			fmt.Fprintf(stdout, "    Multi-site: up to %d sites\n", job.EffectiveMaxWebsites())
		} else if job.Options.HandlePagination {
			fmt.Fprintf(stdout, "    Pagination: up to %d pages\n", job.EffectiveMaxPages())
		}
		if job.Schedule != "" {
			fmt.Fprintf(stdout, "    Schedule: %s\n", job.Schedule)
		}
		fmt.Fprintln(stdout)
	}
	return 0
}
