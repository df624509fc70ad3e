package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/extract"
	applog "github.com/Sriram-PR/field-scraper/pkg/log"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/process"
	"github.com/Sriram-PR/field-scraper/pkg/session"
)

// runSessions handles the sessions subcommand
func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	sessionID := fs.String("id", "", "Show one session in full")
	asJSON := fs.Bool("json", false, "Print JSON instead of a summary")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper sessions [options]\n\nReads sessions from the badger session store in state_dir.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doSessions(*configFile, *sessionID, *asJSON, os.Stdout, os.Stderr))
}

// doSessions prints stored sessions. Returns exit code (0 = success, 1 = error).
func doSessions(configPath, sessionID string, asJSON bool, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if appCfg.SessionStore != config.SessionStoreBadger {
		fmt.Fprintf(stderr, "Error: session_store is '%s'; sessions are only kept between runs with '%s'\n",
			appCfg.SessionStore, config.SessionStoreBadger)
		return 1
	}

	log := applog.NewLogger("error", stderr)
	store, err := session.NewBadgerStore(appCfg.StateDir, logrus.NewEntry(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if sessionID != "" {
		sess, err := store.Get(sessionID)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return printJSON(sess, stdout, stderr)
	}

	sessions, err := store.List()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if asJSON {
		return printJSON(sessions, stdout, stderr)
	}

	fmt.Fprintf(stdout, "Sessions in %s: %d\n\n", appCfg.StateDir, len(sessions))
	for _, sess := range sessions {
		fmt.Fprintf(stdout, "  %s  %-9s  %s\n", sess.ID, sess.Status, sess.JobKey)
		fmt.Fprintf(stdout, "    Started: %s", sess.StartedAt.Format(time.RFC3339))
		if sess.EndedAt != nil {
			fmt.Fprintf(stdout, " (took %v)", sess.EndedAt.Sub(sess.StartedAt).Round(time.Millisecond))
		}
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "    Progress: %d/%d, %d records, %d errors\n",
			sess.Progress.Current, sess.Progress.Total, len(sess.Results), len(sess.Errors))
	}
	return 0
}

// selectorFlags are the test-selector subcommand's inputs
type selectorFlags struct {
	ConfigPath string
	URL        string
	File       string
	JobKey     string // With File: run the job's full selector list
	CSS        string
	XPath      string
	Regex      string
	Attribute  string
	UAProfile  string
	LogLevel   string
}

func (f selectorFlags) selector() config.Selector {
	return config.Selector{
		Name:      "preview",
		CSSQuery:  f.CSS,
		PathQuery: f.XPath,
		Regex:     f.Regex,
		Attribute: models.ParseAttribute(f.Attribute),
	}
}

// runTestSelector handles the test-selector subcommand
func runTestSelector(args []string) {
	fs := flag.NewFlagSet("test-selector", flag.ExitOnError)
	var f selectorFlags
	fs.StringVar(&f.ConfigPath, "config", "config.yaml", "Path to config file (used with -url and -job)")
	fs.StringVar(&f.URL, "url", "", "Page to load")
	fs.StringVar(&f.File, "file", "", "Local HTML file to test against instead of loading -url")
	fs.StringVar(&f.JobKey, "job", "", "With -file: extract all of this job's selectors")
	fs.StringVar(&f.CSS, "css", "", "CSS selector")
	fs.StringVar(&f.XPath, "xpath", "", "XPath expression")
	fs.StringVar(&f.Regex, "regex", "", "Regex applied to the value, or to page text when no query is set")
	fs.StringVar(&f.Attribute, "attribute", "", "text (default), html, or an attribute name such as href")
	fs.StringVar(&f.UAProfile, "ua-profile", "", "User agent profile from the config")
	fs.StringVar(&f.LogLevel, "loglevel", "warn", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: field-scraper test-selector [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  field-scraper test-selector -url https://example.com -css 'h1'\n")
		fmt.Fprintf(os.Stderr, "  field-scraper test-selector -file page.html -xpath '//a/@href' -attribute href\n")
		fmt.Fprintf(os.Stderr, "  field-scraper test-selector -file page.html -job product_list\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doTestSelector(f, os.Stdout, os.Stderr))
}

// doTestSelector evaluates a selector, or a job's selectors, and prints the outcome as JSON.
// Returns exit code (0 = success, 1 = error).
func doTestSelector(f selectorFlags, stdout, stderr io.Writer) int {
	if f.URL == "" && f.File == "" {
		fmt.Fprintln(stderr, "Error: one of -url or -file is required")
		return 1
	}
	log := applog.NewLogger(f.LogLevel, stderr)
	ctx := context.Background()

	if f.File != "" {
		markup, err := os.ReadFile(f.File)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		base := f.URL
		if base == "" {
			abs, _ := filepath.Abs(f.File)
			base = "file://" + filepath.ToSlash(abs)
		}
		p, err := page.FromHTML(base, markup)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		extractor := extract.NewEngine(logrus.NewEntry(log))

		if f.JobKey != "" {
			return extractJobFromPage(ctx, f, p, extractor, stdout, stderr)
		}
		return printJSON(extractor.TestSelector(ctx, p, f.selector()), stdout, stderr)
	}

	appCfg, err := loadConfig(f.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	appCfg.SessionStore = config.SessionStoreMemory // Nothing to persist for a preview
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rt, err := orchestrate.NewRuntime(ctx, appCfg, logrus.NewEntry(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.Close()

	res := rt.Engine.TestSelector(ctx, f.URL, f.UAProfile, f.selector())
	if code := printJSON(res, stdout, stderr); code != 0 {
		return code
	}
	if !res.Success {
		return 1
	}
	return 0
}

// extractJobFromPage runs a job's selectors and filters over one page and prints the records
func extractJobFromPage(ctx context.Context, f selectorFlags, p page.Page, extractor *extract.Engine, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(f.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	job, err := appCfg.Job(f.JobKey)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	filter, err := process.NewFilter(job.Filters)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	records := filter.Apply(extractor.Extract(ctx, p, job.Selectors))
	if job.Options.RemoveDuplicates {
		records = process.Dedupe(records)
	}
	return printJSON(records, stdout, stderr)
}

// printJSON writes v as indented JSON
func printJSON(v interface{}, stdout, stderr io.Writer) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}
