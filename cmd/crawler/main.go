package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/export"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/otp"
	"CrawlerJobStreet/internal/scrape"
	"CrawlerJobStreet/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML file overriding the built-in defaults")
		email      = flag.String("email", "", "JobStreet account email (the login code is mailed here)")
		keywords   = flag.String("keywords", "", "comma separated search keywords, e.g. \"linux,devops\"")
		location   = flag.String("location", "", "search location")
		engine     = flag.String("engine", "", "browser engine: chrome or firefox")
		headless   = flag.Bool("headless", false, "run the browser headless")
		outDir     = flag.String("out-dir", "", "directory for the CSV exports")
		batch      = flag.Bool("batch", false, "append every page to pre-created CSV files instead of one export at the end")
		dbPath     = flag.String("db", "", "also archive listings into this SQLite file")
		otpSource  = flag.String("otp-source", "", "where the login code comes from: prompt or imap")
		storePW    = flag.Bool("store-imap-password", false, "read the IMAP password from stdin, save it in the OS keychain and exit")
		forgetPW   = flag.Bool("forget-imap-password", false, "remove the saved IMAP password from the OS keychain and exit")
		logConsole = flag.Bool("log-console", false, "mirror the log file to stderr")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "email":
			cfg.Site.Email = strings.TrimSpace(*email)
		case "keywords":
			cfg.Site.Keywords = config.SplitKeywords(*keywords)
		case "location":
			cfg.Site.Location = strings.TrimSpace(*location)
		case "engine":
			cfg.Browser.Engine = *engine
		case "headless":
			cfg.Browser.Headless = *headless
		case "out-dir":
			cfg.Export.Dir = *outDir
		case "batch":
			cfg.Export.Batch = *batch
		case "db":
			cfg.Store.Path = *dbPath
		case "otp-source":
			cfg.OTP.Source = *otpSource
		case "log-console":
			cfg.Log.Console = *logConsole
		}
	})

	if *storePW || *forgetPW {
		kc, err := otp.NewKeychain(cfg.OTP.Username, cfg.OTP.IMAPAddr)
		if err != nil {
			fail(fmt.Errorf("%w (set otp.username and otp.imap_addr, or JOBSTREET_IMAP_USERNAME / JOBSTREET_IMAP_ADDR)", err))
		}
		if *forgetPW {
			if err := kc.Forget(); err != nil {
				fail(err)
			}
			fmt.Printf("IMAP password for %s removed from the OS keychain.\n", kc.Account())
			return
		}
		if err := storeIMAPPassword(kc, cfg.OTP.Username); err != nil {
			fail(err)
		}
		fmt.Println("IMAP password saved in the OS keychain.")
		return
	}

	if err := config.Validate(cfg); err != nil {
		fail(err)
	}

	log, closer, err := logging.New(cfg.Log.Dir, cfg.Log.File, cfg.Log.Console, cfg.Log.Level)
	if err != nil {
		fail(err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("crawler failed")
		stop()
		closer.Close()
		fail(err)
	}
}

var openBrowser = browser.Open

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	codes, err := codeSource(cfg, log)
	if err != nil {
		return err
	}

	exporter := export.New(cfg.Export.Dir, cfg.Export.Prefix, log)
	var sinks []scrape.PageSink

	var b *export.Batch
	if cfg.Export.Batch {
		if b, err = exporter.NewBatch(); err != nil {
			return err
		}
		sinks = append(sinks, b)
	}
	// a crawl that never starts still leaves the no-data placeholder
	abandon := func() {
		if b == nil {
			return
		}
		if _, _, err := b.Finish(); err != nil {
			log.WithError(err).Warn("closing batch export")
		}
	}

	var archive *store.Archive
	if cfg.Store.Path != "" {
		if archive, err = store.Open(ctx, cfg.Store.Path, log); err != nil {
			abandon()
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
		sinks = append(sinks, archive)
	}

	log.WithFields(logrus.Fields{
		"engine":   cfg.Browser.Engine,
		"headless": cfg.Browser.Headless,
		"keywords": strings.Join(cfg.Site.Keywords, ","),
		"location": cfg.Site.Location,
	}).Info("starting crawler")

	br, err := openBrowser(ctx, cfg.Browser.Engine, browser.Options{
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		UserAgent:    cfg.Browser.UserAgent,
		WebDriverURL: cfg.Browser.WebDriverURL,
		Lang:         cfg.Browser.Lang,
	})
	if err != nil {
		abandon()
		return fmt.Errorf("starting browser: %w", err)
	}

	sess := scrape.New(br, cfg, codes, log, scrape.WithSinks(sinks...), scrape.WithProgress(os.Stdout))
	defer sess.Close()

	records, runErr := sess.Run(ctx, cfg.Site.Keywords)

	// exports run even after a failed or interrupted scrape
	var mainPath, secondaryPath string
	if b != nil {
		mainPath, secondaryPath, err = b.Finish()
	} else {
		mainPath, secondaryPath, err = exporter.Export(context.Background(), records)
	}
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("export: %w", err))
	}

	fmt.Printf("Main CSV: %s\n", mainPath)
	if secondaryPath != "" {
		fmt.Printf("Secondary CSV: %s\n", secondaryPath)
	}
	if archive != nil {
		if n, err := archive.Count(context.Background()); err == nil {
			log.WithField("jobs", n).Info("archive updated")
			fmt.Printf("Archive %s now holds %d jobs\n", cfg.Store.Path, n)
		}
	}
	return runErr
}

func codeSource(cfg config.Config, log *logrus.Logger) (scrape.CodeSource, error) {
	if cfg.OTP.Source != config.OTPSourceIMAP {
		return otp.NewPrompt(os.Stdin, os.Stdout), nil
	}
	pw := os.Getenv("JOBSTREET_IMAP_PASSWORD")
	if pw == "" {
		kc, err := otp.NewKeychain(cfg.OTP.Username, cfg.OTP.IMAPAddr)
		if err != nil {
			return nil, err
		}
		if pw, err = kc.Password(); err != nil {
			return nil, err
		}
	}
	return otp.NewIMAPSource(otp.IMAPConfig{
		Addr:            cfg.OTP.IMAPAddr,
		Username:        cfg.OTP.Username,
		Password:        pw,
		Mailbox:         cfg.OTP.Mailbox,
		SubjectContains: cfg.OTP.SubjectContains,
		Timeout:         cfg.OTP.Timeout,
		PollEvery:       cfg.OTP.PollEvery,
	}, log), nil
}

func storeIMAPPassword(kc otp.Keychain, username string) error {
	fmt.Printf("IMAP password for %s: ", username)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	return kc.Save(strings.TrimSpace(line))
}

func fail(err error) {
	msg := strings.SplitN(err.Error(), "\n", 2)[0]
	if strings.HasPrefix(err.Error(), "config validation failed") {
		msg = err.Error()
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	os.Exit(1)
}
