// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"zipfinder/archiver"
	"zipfinder/automation"
	"zipfinder/cnf"
	"zipfinder/indexer"
	"zipfinder/kmscrypt"
	"zipfinder/loader"
	"zipfinder/search"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second

	// commands annotated this way need only the `aws` configuration
	annotAWSOnly = "awsOnly"
)

var (
	version   string
	buildDate string
	gitCommit string
)

type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

type loadFlags struct {
	reindex    bool
	yes        bool
	noResume   bool
	dryRun     bool
	workers    int
	windowSize int
	index      string
}

// signalContext returns a context cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	syscallChan := make(chan os.Signal, 1)
	signal.Notify(syscallChan, os.Interrupt)
	signal.Notify(syscallChan, syscall.SIGTERM)
	go func() {
		select {
		case evt := <-syscallChan:
			log.Warn().Str("signal", evt.String()).Msg("interrupted, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(syscallChan)
	}()
	return ctx, cancel
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func confirmation(yes bool) loader.ConfirmFunc {
	if yes {
		return loader.AlwaysConfirm
	}
	return loader.ConfirmFromReader(os.Stdin, os.Stderr)
}

func indexArg(conf *cnf.Conf, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return conf.SearchBackend.IndexName
}

func runLoad(conf *cnf.Conf, sourcePath string, flags loadFlags) error {
	if flags.workers > 0 {
		conf.Loader.Workers = flags.workers
	}
	if flags.windowSize > 0 {
		conf.Loader.WindowSize = flags.windowSize
	}
	if flags.index == "" {
		flags.index = conf.SearchBackend.IndexName
	}
	if err := conf.Loader.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid load options: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	srv, err := openServices(conf)
	if err != nil {
		return err
	}
	srv.Start(ctx)
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shCancel()
		srv.Close(shCtx)
	}()
	driver, err := srv.newDriver(confirmation(flags.yes))
	if err != nil {
		return err
	}
	stats, err := driver.Run(ctx, loader.RunOptions{
		SourcePath: sourcePath,
		Index:      flags.index,
		Reindex:    flags.reindex,
		Resume:     !flags.noResume,
		DryRun:     flags.dryRun,
		Out:        os.Stdout,
	})
	if err != nil {
		return err
	}
	if !flags.dryRun {
		return printJSON(stats)
	}
	return nil
}

func runServer(conf *cnf.Conf, ver VersionInfo) error {
	ctx, cancel := signalContext()
	defer cancel()
	srv, err := openServices(conf)
	if err != nil {
		return err
	}
	srv.Start(ctx)
	srv.StartCleaner(ctx)
	server := &apiServer{conf: conf, services: srv, version: ver}
	server.Start(ctx)

	<-ctx.Done()
	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()
	if err := server.Stop(shCtx); err != nil {
		log.Error().Err(err).Msg("shutdown request error")
	}
	srv.Close(shCtx)
	return nil
}

func runReplay(conf *cnf.Conf, index string, limit int) error {
	ctx, cancel := signalContext()
	defer cancel()
	srv, err := openServices(conf)
	if err != nil {
		return err
	}
	defer srv.Close(context.Background())
	if srv.db == nil {
		return fmt.Errorf("failed to replay: deadLetterDb not configured")
	}
	if srv.keeper != nil {
		// move everything from the queue first so nothing is missed
		if err := srv.keeper.Flush(); err != nil {
			return fmt.Errorf("failed to replay: %w", err)
		}
	}
	bl := loader.NewBulkLoader(srv.backend, index, conf.Loader, nil, "replay")
	stats, err := loader.NewReplayer(srv.db, bl).Replay(ctx, index, limit)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runLookup(conf *cnf.Conf, text string) error {
	backend, err := indexer.NewBackend(conf.SearchBackend)
	if err != nil {
		return err
	}
	defer backend.Close()
	service := search.NewService(backend, conf.SearchBackend.IndexName, conf.Lookup)
	ans, err := service.Lookup(context.Background(), text)
	if err != nil {
		return err
	}
	return printJSON(ans)
}

func withBackend(conf *cnf.Conf, fn func(ctx context.Context, backend indexer.Backend) error) error {
	backend, err := indexer.NewBackend(conf.SearchBackend)
	if err != nil {
		return err
	}
	defer backend.Close()
	ctx, cancel := context.WithTimeout(context.Background(), conf.SearchBackend.RequestTimeout())
	defer cancel()
	return fn(ctx, backend)
}

func indexesCommand(conf **cnf.Conf) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Manage address indexes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List existing indexes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withBackend(*conf, func(ctx context.Context, backend indexer.Backend) error {
					items, err := backend.ListIndexes(ctx)
					if err != nil {
						return err
					}
					return printJSON(items)
				})
			},
		},
		&cobra.Command{
			Use:   "create [name]",
			Short: "Create an index with the address mapping",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := indexArg(*conf, args)
				return withBackend(*conf, func(ctx context.Context, backend indexer.Backend) error {
					sm := indexer.NewSchemaManager(backend, (*conf).SearchBackend.TextAnalyzer)
					if err := sm.CreateIndex(ctx, name); err != nil {
						return err
					}
					log.Info().Str("index", name).Msg("index created")
					return nil
				})
			},
		},
	)
	deleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete an index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := indexArg(*conf, args)
			ok, err := confirmation(yes)(fmt.Sprintf("Index `%s` will be deleted. Continue?", name))
			if err != nil || !ok {
				return err
			}
			return withBackend(*conf, func(ctx context.Context, backend indexer.Backend) error {
				if err := indexer.NewSchemaManager(backend, "").DeleteIndex(ctx, name); err != nil {
					return err
				}
				log.Info().Str("index", name).Msg("index deleted")
				return nil
			})
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear [name]",
		Short: "Delete all documents but keep the index and its mapping",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := indexArg(*conf, args)
			ok, err := confirmation(yes)(
				fmt.Sprintf("All documents of `%s` will be deleted. Continue?", name))
			if err != nil || !ok {
				return err
			}
			return withBackend(*conf, func(ctx context.Context, backend indexer.Backend) error {
				numDeleted, err := backend.ClearIndex(ctx, name)
				if err != nil {
					return err
				}
				log.Info().Str("index", name).Int("numDeleted", numDeleted).Msg("index cleared")
				return nil
			})
		},
	}
	deleteCmd.Flags().BoolVar(&yes, "yes", false, "do not ask for confirmation")
	clearCmd.Flags().BoolVar(&yes, "yes", false, "do not ask for confirmation")
	cmd.AddCommand(deleteCmd, clearCmd)
	return cmd
}

func rootCommand(ver VersionInfo) *cobra.Command {
	var confPath string
	var conf *cnf.Conf

	root := &cobra.Command{
		Use:           "zipfinder",
		Short:         "Zipfinder - address to ZIP code loader and lookup service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch cmd.Name() {
			case "version", "help", "completion":
				return
			}
			conf = cnf.LoadConfig(confPath)
			logging.SetupLogging(conf.LogFile, conf.LogLevel)
			if cmd.Annotations[annotAWSOnly] != "" {
				if err := conf.AWS.ValidateAndDefaults(); err != nil {
					log.Fatal().Err(err).Msg("invalid configuration")
				}
				return
			}
			cnf.ValidateAndDefaults(conf)
		},
	}
	root.PersistentFlags().StringVar(&confPath, "config", "", "path to a JSON configuration file")

	var lflags loadFlags
	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load an address spreadsheet (xlsx, csv) into an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(conf, args[0], lflags)
		},
	}
	loadCmd.Flags().BoolVar(&lflags.reindex, "reindex", false, "delete and recreate the index before loading")
	loadCmd.Flags().BoolVar(&lflags.yes, "yes", false, "do not ask for confirmation")
	loadCmd.Flags().BoolVar(&lflags.noResume, "no-resume", false, "ignore a checkpoint of a previous interrupted load")
	loadCmd.Flags().BoolVar(&lflags.dryRun, "dry-run", false, "only print normalized documents")
	loadCmd.Flags().IntVar(&lflags.workers, "workers", 0, "number of concurrent bulk requests")
	loadCmd.Flags().IntVar(&lflags.windowSize, "window-size", 0, "number of rows per batch")
	loadCmd.Flags().StringVar(&lflags.index, "index", "", "target index (default from configuration)")

	var replayIndex string
	var replayLimit int
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Submit archived failed batches again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := archiver.ValidateBatchLimit(replayLimit); err != nil {
				return fmt.Errorf("invalid --limit: %w", err)
			}
			return runReplay(conf, replayIndex, replayLimit)
		},
	}
	replayCmd.Flags().StringVar(&replayIndex, "index", "", "replay only batches of the index")
	replayCmd.Flags().IntVar(
		&replayLimit, "limit", 100,
		fmt.Sprintf("max. number of batches to replay (1-%d)", archiver.MaxLoadedFailedBatches))

	root.AddCommand(
		loadCmd,
		replayCmd,
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				log.Info().Msg("Starting Zipfinder")
				return runServer(conf, ver)
			},
		},
		&cobra.Command{
			Use:   "lookup <address>",
			Short: "Look up ZIP codes of an address (e.g. \"Herzl 12, Tel Aviv\")",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLookup(conf, strings.Join(args, " "))
			},
		},
		indexesCommand(&conf),
		&cobra.Command{
			Use:   "ping",
			Short: "Check connection to the search backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withBackend(conf, func(ctx context.Context, backend indexer.Backend) error {
					if err := backend.Ping(ctx); err != nil {
						return err
					}
					fmt.Println("OK")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:         "encrypt <text>",
			Annotations: map[string]string{annotAWSOnly: "true"},
			Short:       "Encrypt a text using the configured KMS key, print base64",
			Args:        cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := kmscrypt.NewClient(cmd.Context(), conf.AWS)
				if err != nil {
					return err
				}
				blob, err := client.Encrypt(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(base64.StdEncoding.EncodeToString(blob))
				return nil
			},
		},
		&cobra.Command{
			Use:         "decrypt <base64>",
			Annotations: map[string]string{annotAWSOnly: "true"},
			Short:       "Decrypt a base64 encoded KMS ciphertext",
			Args:        cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				blob, err := base64.StdEncoding.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("invalid ciphertext: %w", err)
				}
				client, err := kmscrypt.NewClient(cmd.Context(), conf.AWS)
				if err != nil {
					return err
				}
				text, err := client.Decrypt(cmd.Context(), blob)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			},
		},
		&cobra.Command{
			Use:         "stop-instance <instance-id>",
			Annotations: map[string]string{annotAWSOnly: "true"},
			Short:       "Stop an EC2 instance",
			Args:        cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				stopper, err := automation.NewInstanceStopper(cmd.Context(), conf.AWS)
				if err != nil {
					return err
				}
				ans, err := stopper.StopInstance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(ans.StoppingInstances)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("zipfinder %s\nbuild date: %s\nlast commit: %s\n", ver.Version, ver.BuildDate, ver.GitCommit)
			},
		},
	)
	return root
}

func main() {
	ver := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}
	if err := rootCommand(ver).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
