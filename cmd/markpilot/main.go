package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"markpilot/internal/backup"
	"markpilot/internal/bookmarks"
	"markpilot/internal/config"
	"markpilot/internal/discovery"
	"markpilot/internal/feed"
	"markpilot/internal/llm"
	"markpilot/internal/notify"
	"markpilot/internal/pipeline"
	"markpilot/internal/progress"
	"markpilot/internal/scheduler"
	"markpilot/internal/service"
	"markpilot/internal/storage"
	"markpilot/internal/titlefix"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: markpilot <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve        Run the refresh scheduler until interrupted")
	fmt.Fprintln(os.Stderr, "  reorganize   Categorize all bookmarks with AI and rebuild the tree")
	fmt.Fprintln(os.Stderr, "  discover     Probe bookmarked sites for feeds and subscribe")
	fmt.Fprintln(os.Stderr, "  refresh      Refresh all subscriptions once")
	fmt.Fprintln(os.Stderr, "  titles       Fill in missing bookmark titles, with AI when configured")
	fmt.Fprintln(os.Stderr, "  briefing     Generate a briefing from unread items")
	fmt.Fprintln(os.Stderr, "  analyze      Fetch an article and produce structured AI notes")
	fmt.Fprintln(os.Stderr, "  export       Write a full backup to stdout or a file")
	fmt.Fprintln(os.Stderr, "  import       Replace all state with a backup file (destructive)")
	fmt.Fprintln(os.Stderr, "  import-html  Import Netscape bookmark HTML additively")
	fmt.Fprintln(os.Stderr, "  test-ai      Verify the AI provider configuration")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	a := &app{
		cfg:   cfg,
		log:   log,
		store: storage.NewSQLite(db),
		tree:  bookmarks.NewSQLite(db),
	}
	defer func() { _ = a.store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "reorganize":
		err = a.reorganize(ctx)
	case "discover":
		err = a.discover(ctx)
	case "refresh":
		err = a.refresh(ctx)
	case "titles":
		err = a.titles(ctx)
	case "briefing":
		err = a.briefing(ctx)
	case "analyze":
		err = a.analyze(ctx, args)
	case "export":
		err = a.export(ctx, args)
	case "import":
		err = a.importBackup(ctx, args)
	case "import-html":
		err = a.importHTML(ctx, args)
	case "test-ai":
		err = a.testAI(ctx)
	default:
		usage()
	}
	if err != nil {
		log.Error(cmd, "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Storage
	tree  bookmarks.Service
}

// permanentRoots are the two folders every tree starts with.
var permanentRoots = []string{"1", "2"}

func (a *app) newLLM() (*llm.Client, error) {
	return llm.NewClient(a.cfg.AIProvider, llm.Options{
		APIKey:  a.cfg.AIAPIKey,
		Model:   a.cfg.AIModel,
		BaseURL: a.cfg.AIBaseURL,
	})
}

func (a *app) newService() *service.Service {
	fetcher := feed.New(http.DefaultClient)
	prober := discovery.NewProber(http.DefaultClient)
	return service.New(a.store, a.tree, fetcher, prober, a.cfg.PoolSize, a.log)
}

func (a *app) newSender() notify.Sender {
	if !a.cfg.NotifyEnabled {
		return nil
	}
	var senders notify.Multi
	if a.cfg.PushRelayURL != "" && a.cfg.PushUserKey != "" {
		senders = append(senders, notify.NewPushRelay(a.cfg.PushRelayURL, a.cfg.PushUserKey, nil))
	}
	if a.cfg.TelegramToken != "" && a.cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramChatID)
		if err != nil {
			a.log.Warn("telegram sender unavailable", "error", err)
		} else {
			senders = append(senders, tg)
		}
	}
	if len(senders) == 0 {
		return nil
	}
	return senders
}

func (a *app) serve(ctx context.Context) error {
	var briefer scheduler.Briefer
	if a.cfg.AIAPIKey != "" {
		client, err := a.newLLM()
		if err != nil {
			return err
		}
		briefer = client
	}

	sched := scheduler.New(a.newService(), a.store, a.newSender(), briefer, a.log)
	sched.SetTickInterval(time.Duration(a.cfg.RefreshIntervalMin) * time.Minute)

	a.log.Info("starting scheduler", "interval_min", a.cfg.RefreshIntervalMin)
	sched.Run(ctx)
	a.log.Info("scheduler stopped")
	return nil
}

func (a *app) reorganize(ctx context.Context) error {
	client, err := a.newLLM()
	if err != nil {
		return err
	}
	org := pipeline.NewOrganizer(a.tree, client, a.cfg.BatchSize, a.cfg.Concurrency, progress.Logger{Log: a.log})
	return org.Run(ctx, permanentRoots, permanentRoots[0])
}

func (a *app) discover(ctx context.Context) error {
	added, err := a.newService().DiscoverAll(ctx, progress.Logger{Log: a.log})
	if err != nil {
		return err
	}
	fmt.Printf("subscribed to %d new feeds\n", added)
	return nil
}

func (a *app) refresh(ctx context.Context) error {
	summary, err := a.newService().RefreshAll(ctx)
	if err != nil {
		return err
	}
	if summary.Total == 0 {
		fmt.Println("no new items")
		return nil
	}
	_, message := notify.FormatNewItems(summary.Counts, summary.Total)
	fmt.Printf("%d new items\n%s\n", summary.Total, message)
	return nil
}

func (a *app) titles(ctx context.Context) error {
	fixer := titlefix.New(a.tree, nil, a.log)

	// The AI pass runs first so untitled bookmarks still exist for it;
	// the page-title fallback then covers whatever it left behind.
	if a.cfg.AIAPIKey != "" {
		client, err := a.newLLM()
		if err != nil {
			return err
		}
		generated, err := fixer.GenerateMissingTitles(ctx, client, a.cfg.TitleBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("generated %d titles\n", generated)
	}

	fixed, err := fixer.FixEmptyTitles(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("repaired %d empty titles from page titles\n", fixed)
	return nil
}

func (a *app) analyze(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: analyze <url>")
	}
	rawURL := args[0]

	client, err := a.newLLM()
	if err != nil {
		return err
	}
	fixer := titlefix.New(a.tree, nil, a.log)
	content, err := fixer.FetchPageText(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	title := fixer.FetchPageTitle(ctx, rawURL)

	sections, err := client.AnalyzeArticle(ctx, title, content)
	if err != nil {
		return err
	}
	for _, s := range sections {
		fmt.Printf("## %s\n%s\n\n", s.Title, s.Content)
	}
	return nil
}

func (a *app) briefing(ctx context.Context) error {
	client, err := a.newLLM()
	if err != nil {
		return err
	}

	subs, err := a.store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, sub := range subs {
		read := make(map[string]bool, len(sub.ReadItems))
		for _, link := range sub.ReadItems {
			read[link] = true
		}
		for _, item := range sub.Items {
			if read[item.Link] {
				continue
			}
			fmt.Fprintf(&b, "- %s", item.Title)
			if item.Description != "" {
				fmt.Fprintf(&b, ": %s", item.Description)
			}
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		fmt.Println("no unread items")
		return nil
	}

	sections, err := client.GenerateBriefing(ctx, b.String())
	if err != nil {
		return err
	}
	for _, s := range sections {
		fmt.Printf("## %s\n%s\n\n", s.Title, s.Content)
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "output file (default stdout)")
	_ = fs.Parse(args)

	data, err := backup.New(a.tree, a.store, a.log).Export(ctx)
	if err != nil {
		return err
	}
	if *out == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(*out, data, 0o600)
}

func (a *app) importBackup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	force := fs.Bool("force", false, "confirm replacing ALL current data")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: import [-force] <backup.json>")
	}
	if !*force {
		return fmt.Errorf("import wipes all current data; re-run with -force to confirm")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := backup.New(a.tree, a.store, a.log).Import(ctx, data); err != nil {
		return err
	}
	fmt.Println("backup restored")
	return nil
}

func (a *app) importHTML(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-html", flag.ExitOnError)
	parent := fs.String("parent", "2", "folder to import into")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: import-html [-parent id] <bookmarks.html>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	count, err := backup.New(a.tree, a.store, a.log).ImportNetscape(ctx, f, *parent)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d bookmarks\n", count)
	return nil
}

func (a *app) testAI(ctx context.Context) error {
	client, err := a.newLLM()
	if err != nil {
		return err
	}
	if err := client.TestConnection(ctx); err != nil {
		return err
	}
	fmt.Println("AI provider OK")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
