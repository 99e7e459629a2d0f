package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-logr/logr"
	"github.com/urfave/cli/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/walletop/client"
	"github.com/vvakame/walletop/gateway"
	"github.com/vvakame/walletop/internal/codegen"
	"github.com/vvakame/walletop/internal/config"
	"github.com/vvakame/walletop/internal/walletstub"
	"github.com/vvakame/walletop/operation"
	"github.com/vvakame/walletop/walletcomplete"
)

func genCommand() *cli.Command {
	return &cli.Command{
		Name:      "gen",
		Usage:     "write the parsed artifact of an operation document",
		ArgsUsage: "<file.graphql>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(codegen.FormatJSON),
				Usage:   "json, yaml or go",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file, stdout when empty",
			},
			&cli.StringFlag{
				Name:  "package",
				Usage: "package name of the go format",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "identifier prefix of the go format",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("provide a single operation document")
			}
			format, err := codegen.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}

			fileName := c.Args().First()
			doc, err := parseFile(c, fileName)
			if err != nil {
				return err
			}

			b, err := codegen.Generate(c.Context, doc, &codegen.Options{
				Format:  format,
				Package: c.String("package"),
				Name:    c.String("name"),
				Source:  filepath.ToSlash(fileName),
			})
			if err != nil {
				return err
			}

			return writeOutput(c, c.String("output"), b)
		},
	}
}

func printCommand() *cli.Command {
	return &cli.Command{
		Name:      "print",
		Usage:     "print the canonical query and its hash",
		ArgsUsage: "<file.graphql>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("provide a single operation document")
			}
			doc, err := parseFile(c, c.Args().First())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(c.App.Writer, "# %s %s sha256:%s\n%s", doc.OperationType(), doc.FieldName(), doc.Hash(), doc.Query())
			return err
		},
	}
}

func manifestCommand() *cli.Command {
	return &cli.Command{
		Name:      "manifest",
		Usage:     "write a persisted query manifest of operation documents",
		ArgsUsage: "<file.graphql>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file, stdout when empty",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("provide operation documents")
			}

			registry, err := operation.NewRegistry(operation.DefaultRegistrySize)
			if err != nil {
				return err
			}
			for _, fileName := range c.Args().Slice() {
				b, err := os.ReadFile(fileName)
				if err != nil {
					return err
				}
				_, err = registry.Register(c.Context, &ast.Source{Name: filepath.ToSlash(fileName), Input: string(b)})
				if err != nil {
					return err
				}
			}

			b, err := json.MarshalIndent(registry.Manifest(), "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(c, c.String("output"), append(b, '\n'))
		},
	}
}

func execCommand() *cli.Command {
	return &cli.Command{
		Name:  "exec",
		Usage: "sign in with a wallet through a GraphQL endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "GraphQL endpoint URL",
				EnvVars: []string{"WALLETOP_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:     "address",
				Usage:    "wallet address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "signature",
				Usage:    "signature of the nonce",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "nonce",
				Usage:    "nonce issued by the server",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "request header as `Key: Value`",
			},
			&cli.BoolFlag{
				Name:    "persisted",
				Usage:   "use automatic persisted queries",
				EnvVars: []string{"WALLETOP_PERSISTED"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("endpoint") {
				cfg.Endpoint = c.String("endpoint")
			}
			if c.IsSet("persisted") {
				cfg.PersistedQueries = c.Bool("persisted")
			}
			if cfg.Endpoint == "" {
				return errors.New("endpoint is required")
			}

			opts, err := remoteOptions(cfg, c.StringSlice("header"))
			if err != nil {
				return err
			}

			payload, err := walletcomplete.Execute(c.Context, client.NewRemote(cfg.Endpoint, opts...), &walletcomplete.Input{
				WalletAddress: c.String("address"),
				Signature:     c.String("signature"),
				Nonce:         c.String("nonce"),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the in-memory wallet service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				EnvVars: []string{"WALLETOP_ADDR"},
			},
			&cli.StringFlag{
				Name:    "upstream",
				Usage:   "forward operations to this GraphQL endpoint instead of the in-memory service",
				EnvVars: []string{"WALLETOP_UPSTREAM"},
			},
			&cli.StringSliceFlag{
				Name:  "operations",
				Usage: "operation documents the server accepts, any operation when empty",
			},
		},
		Action: func(c *cli.Context) error {
			logger := logr.FromContextOrDiscard(c.Context)

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			addr := cfg.Listen
			if port := os.Getenv("PORT"); port != "" {
				addr = fmt.Sprintf(":%s", port)
			}
			if c.IsSet("addr") {
				addr = c.String("addr")
			}

			es, err := newServeSchema(c, cfg)
			if err != nil {
				return err
			}

			srv := handler.NewDefaultServer(es)
			mux := http.NewServeMux()
			mux.Handle("/", playground.Handler("walletop", "/query"))
			mux.Handle("/query", srv)

			server := &http.Server{
				Addr:              addr,
				ReadHeaderTimeout: 10 * time.Second,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					r = r.WithContext(logr.NewContext(r.Context(), logger))
					mux.ServeHTTP(w, r)
				}),
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("listening server", "addr", addr)

			err = server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func newServeSchema(c *cli.Context, cfg *config.Config) (graphql.ExecutableSchema, error) {
	svc, err := walletstub.New(&walletstub.Config{SessionTTL: cfg.SessionTTL})
	if err != nil {
		return nil, err
	}

	upstream := c.String("upstream")
	files := c.StringSlice("operations")
	if upstream == "" && len(files) == 0 {
		return svc, nil
	}

	serviceDef := gateway.NewLocalServiceDefinition("wallet", svc)
	if upstream != "" {
		opts, err := remoteOptions(cfg, nil)
		if err != nil {
			return nil, err
		}
		serviceDef = gateway.NewRemoteServiceDefinition("wallet", upstream, opts...)
	}

	var registry *operation.Registry
	if len(files) != 0 {
		registry, err = operation.NewRegistry(operation.DefaultRegistrySize)
		if err != nil {
			return nil, err
		}
		for _, fileName := range files {
			b, err := os.ReadFile(fileName)
			if err != nil {
				return nil, err
			}
			_, err = registry.Register(c.Context, &ast.Source{Name: filepath.ToSlash(fileName), Input: string(b)})
			if err != nil {
				return nil, err
			}
		}
	}

	return gateway.NewGateway(c.Context, &gateway.GatewayConfig{
		ServiceDefinition: serviceDef,
		Operations:        registry,
	})
}

// remoteOptions builds client options from cfg and `Key: Value` headers.
func remoteOptions(cfg *config.Config, headers []string) ([]client.Option, error) {
	var opts []client.Option
	for key, values := range cfg.HTTPHeader() {
		for _, value := range values {
			opts = append(opts, client.WithHeader(key, value))
		}
	}
	for _, header := range headers {
		key, value, ok := strings.Cut(header, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header: %s", header)
		}
		opts = append(opts, client.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	if cfg.PersistedQueries {
		opts = append(opts, client.WithPersistedQueries())
	}
	return opts, nil
}

func parseFile(c *cli.Context, fileName string) (*operation.Document, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return operation.Parse(c.Context, &ast.Source{Name: filepath.ToSlash(fileName), Input: string(b)})
}

func writeOutput(c *cli.Context, fileName string, b []byte) error {
	if fileName == "" {
		_, err := c.App.Writer.Write(b)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return err
	}
	return os.WriteFile(fileName, b, 0644)
}
