package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"annfeed/internal/app"
	"annfeed/internal/config"
	"annfeed/internal/dashboard"
	"annfeed/internal/domain"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: annfeed-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  list         Fetch one page of announcements\n")
	fmt.Fprintf(os.Stderr, "  stats        Summarize the latest announcements\n")
	fmt.Fprintf(os.Stderr, "  attachment   Download an announcement's attachment\n")
	fmt.Fprintf(os.Stderr, "  dates        List archived dates\n")
	fmt.Fprintf(os.Stderr, "  archive      Print the archive for a date\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfgPath := "config/annfeed.yaml"
	if p := os.Getenv("ANNFEED_CONFIG"); p != "" {
		cfgPath = p
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")

	var err error
	switch cmd {
	case "version":
		fmt.Printf("annfeed-cli %s\n", version)
	case "list":
		err = runList(ctx, fs, args, &cfgPath)
	case "stats":
		err = runStats(ctx, fs, args, &cfgPath)
	case "attachment":
		err = runAttachment(ctx, fs, args, &cfgPath)
	case "dates":
		err = runDates(ctx, fs, args, &cfgPath)
	case "archive":
		err = runArchive(ctx, fs, args, &cfgPath)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return cfg
}

func runList(ctx context.Context, fs *flag.FlagSet, args []string, cfgPath *string) error {
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 0, "page size (default from config)")
	search := fs.String("search", "", "search text")
	from := fs.String("from", "", "from date YYYY-MM-DD")
	to := fs.String("to", "", "to date YYYY-MM-DD")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	cfg := loadConfig(*cfgPath)
	if *size > 0 {
		cfg.Feed.PageSize = *size
	}
	logger := app.Logger(cfg, os.Stderr)
	src, err := app.NewSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	f := app.NewFeed(cfg, src, logger)
	if err := f.Search(ctx, *search, *from, *to); err != nil {
		return err
	}
	if *page != 1 && !f.SetPage(ctx, *page) {
		if err := f.Err(); err != nil {
			return err
		}
		return fmt.Errorf("page %d out of range", *page)
	}

	v := f.View()
	if *asJSON {
		var recs []domain.Announcement
		for _, g := range v.Rows {
			recs = append(recs, g.Members...)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMPANY\tSYMBOL\tHEADLINE\tID")
	for _, g := range v.Rows {
		for i, r := range g.Members {
			company := r.CompanyName
			if i > 0 {
				company = "  └ " + company
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				dashboard.FormatRecordTime(&r), dashboard.Truncate(company, 40),
				r.Symbols.Primary(), dashboard.Truncate(r.Headline, 60), r.ID)
		}
	}
	tw.Flush()
	fmt.Printf("\n%s  (%d per page, %s total, %s)\n",
		dashboard.PageLabels(v.Pages, v.Page), v.PageSize, dashboard.FormatInt(v.Total), v.Mode)
	return nil
}

func runStats(ctx context.Context, fs *flag.FlagSet, args []string, cfgPath *string) error {
	top := fs.Int("top", 10, "number of busiest companies to show")
	fs.Parse(args)

	cfg := loadConfig(*cfgPath)
	logger := app.Logger(cfg, os.Stderr)
	src, err := app.NewSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	f := app.NewFeed(cfg, src, logger)
	if err := f.Refresh(ctx); err != nil {
		return err
	}
	s := dashboard.Summarize(f.Records(), *top)

	fmt.Printf("records:    %s\n", dashboard.FormatInt(s.Records))
	fmt.Printf("groups:     %s\n", dashboard.FormatInt(s.Groups))
	fmt.Printf("companies:  %s\n", dashboard.FormatInt(s.Companies))
	fmt.Printf("undated:    %s\n", dashboard.FormatInt(s.Undated))
	if !s.First.IsZero() {
		fmt.Printf("range:      %s .. %s\n", dashboard.FormatTimestamp(s.First), dashboard.FormatTimestamp(s.Last))
	}
	fmt.Println()
	for _, c := range s.Busiest {
		fmt.Printf("%6s  %s\n", dashboard.FormatInt(c.Count), c.Company)
	}
	return nil
}

func runAttachment(ctx context.Context, fs *flag.FlagSet, args []string, cfgPath *string) error {
	id := fs.String("id", "", "announcement id (required)")
	dir := fs.String("dir", "", "download directory (default from config)")
	view := fs.Bool("view", false, "open the attachment instead of saving it")
	fs.Parse(args)
	if *id == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg := loadConfig(*cfgPath)
	if *dir != "" {
		cfg.Attachments.DownloadDir = *dir
	}
	logger := app.Logger(cfg, os.Stderr)
	src, err := app.NewSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	am := app.NewAttachments(cfg, src, logger)
	if am == nil {
		return fmt.Errorf("backend %q has no attachments", cfg.Service.Backend)
	}
	var path string
	if *view {
		path, err = am.View(ctx, *id)
	} else {
		path, err = am.Download(ctx, *id)
	}
	if err != nil {
		if msg := am.State(*id).Err; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Println(path)
	return nil
}

func runDates(ctx context.Context, fs *flag.FlagSet, args []string, cfgPath *string) error {
	fs.Parse(args)
	cfg := loadConfig(*cfgPath)
	st, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dates, err := st.Dates(ctx)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}

func runArchive(ctx context.Context, fs *flag.FlagSet, args []string, cfgPath *string) error {
	date := fs.String("date", "", "archive date YYYY-MM-DD (required)")
	fs.Parse(args)
	if *date == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg := loadConfig(*cfgPath)
	st, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.Read(ctx, *date)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMPANY\tHEADLINE\tID")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dashboard.FormatRecordTime(&r),
			dashboard.Truncate(r.CompanyName, 40), dashboard.Truncate(r.Headline, 60), r.ID)
	}
	tw.Flush()
	fmt.Printf("\n%s records\n", dashboard.FormatInt(len(recs)))
	return nil
}
