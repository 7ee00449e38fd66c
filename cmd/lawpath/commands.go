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
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each call returns a fresh tree with
// its own flag state.
func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "lawpath",
		Short: "Link regulatory violations to the laws and forms that address them",
		Long: `lawpath embeds a law reference document, ranks candidate laws for each
observed violation, builds a violation/law/form connection graph and
reports the pathways from violations to reporting forms.

Documents are addressed by local path or by gs:// and s3:// URI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file (defaults apply when empty)")
	pf.StringVar(&a.envFile, "env-file", "", "dotenv file with the embedder API key (default: ./.env when present)")
	pf.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	pf.StringVar(&a.outputMode, "output", "auto", "status line style: auto, rich, plain or machine")
	pf.BoolVar(&a.canonical, "canonical", false, "write documents as RFC 8785 canonical JSON")

	root.AddCommand(
		newEmbedCmd(a),
		newMatchCmd(a),
		newGraphCmd(a),
		newDiscoverCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		newVectorsCmd(a),
		newValidateCmd(a),
		newConfigCmd(a),
	)
	return root
}

func newEmbedCmd(a *app) *cobra.Command {
	var laws, out string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed laws and forms that lack vectors and write the augmented law document",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runEmbed(cmd.Context(), laws, out)
	})
	cmd.Flags().StringVar(&laws, "laws", "", "law reference document")
	cmd.Flags().StringVarP(&out, "out", "o", stdio, "augmented law document destination")
	_ = cmd.MarkFlagRequired("laws")
	return cmd
}

func newMatchCmd(a *app) *cobra.Command {
	var laws, viols, out string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank candidate laws for every violation",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runMatch(cmd.Context(), laws, viols, out)
	})
	cmd.Flags().StringVar(&laws, "laws", "", "law reference document")
	cmd.Flags().StringVar(&viols, "violations", "", "violation document")
	cmd.Flags().StringVarP(&out, "out", "o", stdio, "match document destination")
	_ = cmd.MarkFlagRequired("laws")
	_ = cmd.MarkFlagRequired("violations")
	return cmd
}

func newGraphCmd(a *app) *cobra.Command {
	var laws, viols, matches, out string
	var maxLen int
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the connection graph and report violation-to-form pathways",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runGraph(cmd.Context(), laws, viols, matches, out, maxLen)
	})
	cmd.Flags().StringVar(&laws, "laws", "", "law reference document")
	cmd.Flags().StringVar(&viols, "violations", "", "violation document")
	cmd.Flags().StringVar(&matches, "matches", "", "also write the match document here")
	cmd.Flags().StringVarP(&out, "out", "o", stdio, "pathway document destination")
	cmd.Flags().IntVar(&maxLen, "max-path-length", 0, "override max_path_length")
	_ = cmd.MarkFlagRequired("laws")
	_ = cmd.MarkFlagRequired("violations")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	var viols, root, out string
	var watch bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Extract new violations from source files and the vector store",
		Long: `discover scans a source root with the structured, text and pattern
extractors, adds records not already present in the violation document and
writes the merged document. With --watch it stays running and repeats the
scan whenever files under the root change.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runDiscover(cmd.Context(), viols, root, out, watch)
	})
	cmd.Flags().StringVar(&viols, "violations", "", "existing violation document (may be absent)")
	cmd.Flags().StringVar(&root, "root", "", "source root (default: discovery.root)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "merged document destination (default: --violations)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run discovery when sources change")
	_ = cmd.MarkFlagRequired("violations")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var laws, viols, root, outDir string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run embedding, discovery, matching and pathway analysis end to end",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runAll(cmd.Context(), laws, viols, root, outDir)
	})
	cmd.Flags().StringVar(&laws, "laws", "", "law reference document")
	cmd.Flags().StringVar(&viols, "violations", "", "violation document")
	cmd.Flags().StringVar(&root, "root", "", "discovery source root (discovery is skipped when empty)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "out", "output directory or object prefix")
	_ = cmd.MarkFlagRequired("laws")
	_ = cmd.MarkFlagRequired("violations")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var laws, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve matching, pathway and discovery requests over HTTP",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runServe(cmd.Context(), laws, addr)
	})
	cmd.Flags().StringVar(&laws, "laws", "", "law reference document loaded at startup")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	_ = cmd.MarkFlagRequired("laws")
	return cmd
}

func newVectorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectors",
		Short: "Manage the prior embedding store used by ML discovery",
	}

	var in string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Embed and store prior records for ML discovery",
		Long: `import reads a JSON document of records ({"vectors": [{id, text,
embedding?}]} or a bare array), embeds those without a vector and writes
all of them to the configured vector store.`,
		Args: cobra.NoArgs,
	}
	importCmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runVectorsImport(cmd.Context(), in)
	})
	importCmd.Flags().StringVar(&in, "in", "", "records document")
	_ = importCmd.MarkFlagRequired("in")

	cmd.AddCommand(importCmd)
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "validate [document...]",
		Short: "Check documents against their JSON Schema",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runValidate(cmd.Context(), kind, args)
	})
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "document kind: violations, laws, matches or pathways")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		data, err := a.cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = a.out.Write(data)
		return err
	})
	return cmd
}
