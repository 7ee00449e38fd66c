// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/lawpath/pkg/logging"
	"github.com/AleutianAI/lawpath/pkg/telemetry"
	"github.com/AleutianAI/lawpath/pkg/ux"
	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/docstore"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/pipeline"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// API key environment variables, in lookup order. Only the CLI reads the
// environment; the library packages take everything through config.
var apiKeyEnv = []string{"LAWPATH_EMBEDDER_API_KEY", "OPENAI_API_KEY"}

// apiTokensEnv holds "user:token" pairs accepted by `serve`.
const apiTokensEnv = "LAWPATH_API_TOKENS"

// Static S3 credentials. When unset the AWS default chain applies.
const (
	s3AccessKeyEnv = "LAWPATH_S3_ACCESS_KEY"
	s3SecretKeyEnv = "LAWPATH_S3_SECRET_KEY"
)

// stdio addresses standard output as a document location.
const stdio = "-"

// app carries the state shared by every subcommand: global flags, the
// loaded configuration and the ambient services built from it.
type app struct {
	// Global flags.
	configPath string
	envFile    string
	logLevel   string
	outputMode string
	canonical  bool

	cfg      config.Config
	logger   *logging.Logger
	store    *docstore.Router
	shutdown telemetry.Shutdown
	out      io.Writer

	// ui prints human-facing status lines to stderr; report prints them to
	// stdout for commands whose only output is status.
	ui     *ux.Printer
	report *ux.Printer
}

// applyEnvSecrets copies credentials from the environment into cfg.
// Configuration files never carry them.
func applyEnvSecrets(cfg *config.Config) {
	for _, name := range apiKeyEnv {
		if v := os.Getenv(name); v != "" {
			cfg.Embedder.APIKey = v
			break
		}
	}
	cfg.Storage.S3AccessKey = os.Getenv(s3AccessKeyEnv)
	cfg.Storage.S3SecretKey = os.Getenv(s3SecretKeyEnv)
}

// setup loads .env, the configuration, logging and telemetry. It runs
// before every subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	mode, err := ux.ParseMode(a.outputMode)
	if err != nil {
		return err
	}
	a.ui = ux.NewPrinter(cmd.ErrOrStderr(), mode)
	a.report = ux.NewPrinter(a.out, mode)

	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	applyEnvSecrets(&cfg)
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet,
		Writer:  cmd.ErrOrStderr(),
	})

	tcfg := cfg.Telemetry
	if tcfg.Writer == nil {
		tcfg.Writer = cmd.ErrOrStderr()
	}
	if a.shutdown, err = telemetry.Init(cmd.Context(), tcfg); err != nil {
		return err
	}

	a.store = docstore.NewRouter(cfg.Storage)
	return nil
}

// teardown releases what setup built. Errors are joined so every resource
// gets its chance to close.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// runE wraps a subcommand body so teardown runs whether or not it fails.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if terr := a.teardown(cmd.Context()); err == nil {
				err = terr
			}
		}()
		return fn(cmd, args)
	}
}

// newPipeline builds the configured embedder, vector store and pipeline.
// The returned func releases the embedder cache.
func (a *app) newPipeline(ctx context.Context) (*pipeline.Pipeline, func() error, error) {
	logger := a.logger.Slog()

	emb, closeEmb, err := pipeline.NewEmbedder(ctx, a.cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	vs, err := pipeline.NewVectorStore(a.cfg, logger)
	if err != nil {
		_ = closeEmb()
		return nil, nil, err
	}
	p, err := pipeline.New(a.cfg, pipeline.Deps{
		Embedder:    emb,
		VectorStore: vs,
		Logger:      logger,
	})
	if err != nil {
		_ = closeEmb()
		return nil, nil, err
	}
	return p, closeEmb, nil
}

// =============================================================================
// Document I/O
// =============================================================================

// readLaws reads, validates and prepares the law reference document.
func (a *app) readLaws(ctx context.Context, p *pipeline.Pipeline, location string) (*lawcorpus.Corpus, lawcorpus.AugmentStats, error) {
	data, err := a.store.Read(ctx, location)
	if err != nil {
		return nil, lawcorpus.AugmentStats{}, fmt.Errorf("read %s: %w", location, err)
	}
	if err := documents.Validate(documents.KindLaws, data); err != nil {
		return nil, lawcorpus.AugmentStats{}, err
	}
	laws, err := p.LoadLaws(data)
	if err != nil {
		return nil, lawcorpus.AugmentStats{}, err
	}
	stats, err := p.PrepareLaws(ctx, laws)
	if err != nil {
		return nil, stats, err
	}
	return laws, stats, nil
}

// readViolations reads and validates a violation document. With optional
// set, a missing document yields an empty corpus.
func (a *app) readViolations(ctx context.Context, p *pipeline.Pipeline, location string, optional bool) (*violations.Corpus, error) {
	data, err := a.store.Read(ctx, location)
	if err != nil {
		if optional && errors.Is(err, docstore.ErrNotFound) {
			return violations.New(&violations.Options{Logger: a.logger.Slog()}), nil
		}
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if err := documents.Validate(documents.KindViolations, data); err != nil {
		return nil, err
	}
	corpus, stats, err := p.LoadViolations(data)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded violations",
		"location", location,
		"loaded", stats.Loaded,
	)
	return corpus, nil
}

// writeDocument renders doc and writes it to location, or to stdout when
// location is "-" or empty.
func (a *app) writeDocument(ctx context.Context, location string, doc any) error {
	var buf bytes.Buffer
	if err := documents.Write(&buf, doc, a.canonical); err != nil {
		return err
	}
	return a.writeBytes(ctx, location, buf.Bytes())
}

// writeEncoded writes a document that knows how to encode itself.
func (a *app) writeEncoded(ctx context.Context, location string, encode func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	return a.writeBytes(ctx, location, buf.Bytes())
}

func (a *app) writeBytes(ctx context.Context, location string, data []byte) error {
	if location == "" || location == stdio {
		_, err := a.out.Write(data)
		return err
	}
	if err := a.store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	a.logger.Info("Wrote document", "location", location, "bytes", len(data))
	return nil
}

// printJSON writes a summary to stdout.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// joinLocation appends a file name to a directory path or object prefix.
func joinLocation(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// loadEnvFile loads path into the environment. The default ".env" may be
// absent; an explicitly named file may not.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
