package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/api"
	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/service"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "adpromo",
		Short:        "Publish affiliate ads to a CMS and promote them on social media",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with configuration")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(promoteCmd())
	rootCmd.AddCommand(listCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily promotion scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, envFile)
			if err != nil {
				return err
			}
			defer a.close()
			logger := a.logger

			// Context for background goroutines; cancelled on shutdown signal.
			workerCtx, cancelWorkers := context.WithCancel(ctx)
			defer cancelWorkers()

			schedDone := make(chan struct{})
			if noScheduler {
				close(schedDone)
			} else {
				sched, err := a.scheduler()
				if err != nil {
					return err
				}
				go func() {
					defer close(schedDone)
					sched.Run(workerCtx)
				}()
			}

			// ---- HTTP server ----
			router := api.NewRouter(a.entries, a.promotions, a.reg, a.cfg.MaxRequestBytes, logger)
			srv := &http.Server{
				Addr:         ":" + a.cfg.HTTPPort,
				Handler:      router,
				ReadTimeout:  a.cfg.ReadTimeout,
				WriteTimeout: a.cfg.WriteTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("server starting", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			// ---- graceful shutdown ----
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				logger.Info("shutdown signal received")
			case err := <-serveErr:
				logger.Error("server error", zap.Error(err))
			}

			// 1. Stop accepting new HTTP requests.
			shutdownCtx, shutdownCancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", zap.Error(err))
			}

			// 2. Stop the scheduler; an in-flight promotion finishes first.
			cancelWorkers()
			<-schedDone

			logger.Info("server stopped cleanly")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without the daily trigger")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run only the daily promotion scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, envFile)
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := a.scheduler()
			if err != nil {
				return err
			}
			sched.Run(ctx)
			a.logger.Info("scheduler stopped")
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	var (
		req              domain.RegisterRequest
		tags             string
		payloadFile      string
		imagePath, video string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an entry, publish it and append it to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadFile != "" {
				b, err := os.ReadFile(payloadFile)
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				req.Payload = string(b)
			}
			req.Tags = domain.ParseTags(tags)

			submit := service.SubmitRequest{RegisterRequest: req}
			var err error
			if submit.Image, err = readUpload(imagePath); err != nil {
				return err
			}
			if submit.Video, err = readUpload(video); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, envFile)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.entries.Submit(ctx, submit)
			if err != nil {
				return err
			}

			fmt.Printf("Published post %d %s\n", res.PostID, res.PostLink)
			fmt.Printf("Queued: %s\n", res.Entry.Title)
			if res.Entry.MediaURL != "" {
				fmt.Printf("Media: %s\n", res.Entry.MediaURL)
			}
			for _, w := range res.MediaWarnings {
				fmt.Printf("  warning: %s\n", w)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "entry title (unique)")
	f.StringVar(&req.Category, "category", "", "category label")
	f.StringVar(&req.PromotionText, "text", "", "promotional text")
	f.StringVar(&req.Payload, "payload", "", "ad embed snippet")
	f.StringVar(&payloadFile, "payload-file", "", "read the ad embed snippet from a file")
	f.StringVar(&tags, "tags", "", "comma-separated hashtags")
	f.StringVar(&imagePath, "image", "", "thumbnail file to upload instead of the payload image")
	f.StringVar(&video, "video", "", "video file to upload")
	return cmd
}

func promoteCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote the next queued entry now, or a specific one with --title",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, envFile)
			if err != nil {
				return err
			}
			defer a.close()

			var e *domain.Entry
			if title != "" {
				e, err = a.promotions.PromoteByTitle(ctx, title)
			} else {
				e, err = a.promotions.PromoteNext(ctx)
			}
			if errors.Is(err, domain.ErrNothingToPromote) {
				fmt.Println("Nothing to promote")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Promoted: %s\n", e.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "entry to promote")
	return cmd
}

func listCmd() *cobra.Command {
	var pending, promoted bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued entries in promotion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending && promoted {
				return errors.New("--pending and --promoted are mutually exclusive")
			}
			var filter *bool
			if pending || promoted {
				filter = &promoted
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, envFile)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.entries.List(ctx, filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TITLE\tCATEGORY\tPROMOTED\tTAGS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", truncate(e.Title, 48), e.Category, e.Promoted, domain.JoinTags(e.Tags))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "only entries not yet promoted")
	cmd.Flags().BoolVar(&promoted, "promoted", false, "only promoted entries")
	return cmd
}

func readUpload(path string) (*domain.Upload, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &domain.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
