package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cloudsdk/cloudxfer/internal/devserver"
	xhttp "github.com/cloudsdk/cloudxfer/internal/http"
)

// newDevServerCmd creates the 'devserver' command.
func newDevServerCmd() *cobra.Command {
	var listen, publicURL, backend, dir string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local control endpoint for testing",
		Long: `Run the control endpoint locally. Upload requests get a pre-signed PUT
URL from the configured object store; download requests get the object content.

Backends:
  local  - objects under --dir, PUTs signed with HMAC and accepted by this server
  s3     - pre-signed S3 PUT URLs (s3_bucket, s3_region, optional s3_endpoint)
  azure  - Blob SAS URLs (azure_account, azure_key, azure_container)
  gcs    - V4 signed URLs (gcs_bucket, gcs_credentials_file)

Cloud backends need body_encoding = raw on the client side.

Examples:
  cloudxfer devserver
  cloudxfer devserver --listen :9000 --public-url http://192.168.1.20:9000
  cloudxfer devserver --backend s3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			dev := cfg.Dev
			if cmd.Flags().Changed("listen") {
				dev.Listen = listen
			}
			if cmd.Flags().Changed("public-url") {
				dev.PublicURL = publicURL
			}
			if cmd.Flags().Changed("backend") {
				dev.Backend = backend
			}
			if cmd.Flags().Changed("dir") {
				dev.LocalDir = dir
			}

			httpClient, err := xhttp.ConfigureHTTPClient(cfg.Proxy, logger)
			if err != nil {
				return err
			}

			ctx := GetContext()
			store, err := devserver.NewBackend(ctx, dev, httpClient, logger.Named("store"))
			if err != nil {
				return err
			}

			srv := devserver.NewServer(dev, store, logger.Named("devserver"),
				devserver.WithLimits(cfg.Transfer.SizeLimit, cfg.Transfer.BulkCategory))

			err = srv.ListenAndServe(ctx)
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "Base URL clients use to reach this server")
	cmd.Flags().StringVar(&backend, "backend", "", "Object store: local, s3, azure, gcs")
	cmd.Flags().StringVar(&dir, "dir", "", "Object directory of the local backend")

	return cmd
}
