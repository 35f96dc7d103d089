package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/pdftools/internal/services"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, closeHistory, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer closeHistory()

			engine, closeEngine, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer closeEngine()

			converter := services.NewConverterWith(services.ConverterDeps{
				Engine:  engine,
				History: store,
			})
			srv := &http.Server{
				Addr:              viper.GetString("serve.addr"),
				Handler:           converter,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Serving conversion API on %s\n", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("serve.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
