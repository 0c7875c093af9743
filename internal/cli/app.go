package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dshills/revbridge/internal/cache"
	"github.com/dshills/revbridge/internal/conduit"
	"github.com/dshills/revbridge/internal/config"
	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/message"
	"github.com/dshills/revbridge/internal/output"
	"github.com/dshills/revbridge/internal/revision"
	"github.com/dshills/revbridge/internal/users"
)

// Pipeline flags shared by fields and check-message.
var (
	flagParser      string
	flagUsersFile   string
	flagMergePolicy string
	flagConduitURI  string
	flagNoCache     bool
	flagAllowNoPlan bool
)

// buildOverrides collects explicitly set flags keyed like the config file.
func buildOverrides() map[string]any {
	m := make(map[string]any)
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	if flagLogFormat != "" {
		m["log.format"] = flagLogFormat
	}
	if flagParser != "" {
		m["parser"] = flagParser
	}
	if flagUsersFile != "" {
		m["users_file"] = flagUsersFile
	}
	if flagAllowNoPlan {
		m["allow_empty_test_plan"] = true
	}
	if flagMergePolicy != "" {
		m["merge_policy"] = flagMergePolicy
	}
	if flagConduitURI != "" {
		m["conduit.uri"] = flagConduitURI
	}
	if flagNoCache {
		m["cache.enabled"] = false
	}
	if flagWorkers > 0 {
		m["materialize.workers"] = flagWorkers
	}
	if flagContinueOnError {
		m["materialize.continue_on_error"] = true
	}
	return m
}

// app holds what a command needs after configuration is resolved.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	client *conduit.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfigPath, buildOverrides())
	if err != nil {
		return nil, &usageError{err: err}
	}
	return &app{cfg: cfg, logger: newLogger(os.Stderr, cfg)}, nil
}

// conduitClient builds the Conduit client once.
func (a *app) conduitClient() (*conduit.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	ch, err := cache.New(a.cfg.Cache.Enabled, a.cfg.Cache.Dir, a.cfg.Cache.TTLSeconds)
	if err != nil {
		a.logger.Warn("cache unavailable, continuing without it", "error", err)
		ch = nil
	}
	c, err := conduit.NewClient(a.cfg.Conduit.URI, a.cfg.Conduit.Token,
		conduit.WithTimeout(a.cfg.Conduit.Timeout),
		conduit.WithCache(ch),
		conduit.WithLogger(a.logger),
	)
	if err != nil {
		return nil, &usageError{err: fmt.Errorf("%w (set conduit.uri or REVBRIDGE_CONDUIT_URI)", err)}
	}
	a.client = c
	return c, nil
}

// pipeline returns the parser and user directory selected by config.
func (a *app) pipeline() (revision.Parser, revision.Directory, error) {
	var local *users.Directory
	if a.cfg.UsersFile != "" {
		d, err := users.LoadFile(a.cfg.UsersFile)
		if err != nil {
			return nil, nil, err
		}
		local = d
	}

	if a.cfg.Parser == "local" {
		if local == nil {
			return nil, nil, &usageError{err: errors.New("the local parser needs users_file")}
		}
		p := message.NewParser(local)
		p.AllowEmptyTestPlan = a.cfg.AllowEmptyTestPlan
		return p, local, nil
	}

	c, err := a.conduitClient()
	if err != nil {
		return nil, nil, err
	}
	retries := a.cfg.Conduit.Retries
	return &retryingParser{next: c, retries: retries}, &retryingDirectory{next: c, retries: retries}, nil
}

func (a *app) resolver() (*revision.Resolver, error) {
	parser, dir, err := a.pipeline()
	if err != nil {
		return nil, err
	}
	policy, err := fields.PolicyByName(a.cfg.MergePolicy)
	if err != nil {
		return nil, &usageError{err: err}
	}
	return &revision.Resolver{
		Parser:    parser,
		Directory: dir,
		Composer:  message.Composer{},
		Policy:    policy,
	}, nil
}

// emit writes the report and sets the findings exit code.
func (a *app) emit(report *output.Report, start time.Time) {
	report.Tool = "revbridge"
	report.Version = version
	report.Timing.TotalMs = time.Since(start).Milliseconds()

	useColor := !flagNoColor && !color.NoColor
	if err := output.WriteReport(report, a.cfg.Format, flagOut, useColor); err != nil {
		fail(fmt.Errorf("writing output: %w", err))
		return
	}
	if report.HasFindings() {
		exitCode = ExitFindings
	}
}

type retryingParser struct {
	next    revision.Parser
	retries int
}

func (p *retryingParser) ParseCommitMessage(ctx context.Context, corpus string) (fields.ParseOutcome, error) {
	var out fields.ParseOutcome
	err := conduit.Retry(ctx, p.retries, func() error {
		var err error
		out, err = p.next.ParseCommitMessage(ctx, corpus)
		return err
	})
	return out, err
}

type retryingDirectory struct {
	next    revision.Directory
	retries int
}

func (d *retryingDirectory) UsersFromEmails(ctx context.Context, emails []string) ([]users.Lookup, error) {
	var out []users.Lookup
	err := conduit.Retry(ctx, d.retries, func() error {
		var err error
		out, err = d.next.UsersFromEmails(ctx, emails)
		return err
	})
	return out, err
}

func (d *retryingDirectory) UsernamesFromPHIDs(ctx context.Context, phids []string) ([]string, error) {
	var out []string
	err := conduit.Retry(ctx, d.retries, func() error {
		var err error
		out, err = d.next.UsernamesFromPHIDs(ctx, phids)
		return err
	})
	return out, err
}

// usageError marks errors caused by bad flags or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ue *usageError
	switch {
	case errors.As(err, &ue):
		return ExitUsageError
	case conduit.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
