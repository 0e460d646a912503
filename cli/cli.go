// Package cli is the command line of a schemarpc application. A main
// package builds its root registry and hands it to Execute:
//
//	func main() {
//	    cli.Execute("petshop", registry())
//	}
//
// which provides the serve, docs and call subcommands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	rpcclient "github.com/ybbus/jsonrpc/v2"

	"github.com/mnehpets/schemarpc/config"
	"github.com/mnehpets/schemarpc/docs"
	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/logging"
	"github.com/mnehpets/schemarpc/server"
)

// Execute runs the command line and exits non-zero on failure.
func Execute(name string, root *jsonrpc.Registry) {
	if err := NewCommand(name, root).Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	root    *jsonrpc.Registry
	v       *viper.Viper
	cfgFile string
}

// NewCommand builds the root command for an application serving root.
func NewCommand(name string, root *jsonrpc.Registry) *cobra.Command {
	a := &app{root: root, v: viper.New()}
	cmd := &cobra.Command{
		Use:          name,
		Short:        root.Title(),
		Long:         root.Description(),
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file")
	cmd.AddCommand(a.serveCommand(), a.docsCommand(), a.callCommand())
	return cmd
}

func (a *app) serveCommand() *cobra.Command {
	d := config.Defaults()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			logger, closeLog, err := logging.New(logging.Config{
				Development: cfg.Development,
				Console:     cmd.ErrOrStderr(),
				FilePath:    cfg.LogPath,
				MaxSizeMB:   cfg.LogMaxSizeMB,
				MaxBackups:  cfg.LogMaxBackups,
			})
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := server.New(a.root, cfg, logger).Run(ctx); err != nil {
				logger.Error(err, "server stopped")
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("host", d.Host, "listen host")
	f.Int("port", d.Port, "listen port")
	f.Bool("dev", d.Development, "development mode: check results against their schemas and log verbosely")
	f.Bool("cors", d.CORS, "send permissive CORS headers")
	f.String("cors-origin", d.CORSOrigin, "Access-Control-Allow-Origin value when CORS is on")
	f.String("metrics-addr", d.MetricsAddr, "address of the Prometheus metrics listener")
	f.String("docs-dir", d.DocsDir, "write Markdown docs to this directory at startup")
	f.String("log-path", d.LogPath, "rotated JSON log file")

	for key, flag := range map[string]string{
		"host":         "host",
		"port":         "port",
		"development":  "dev",
		"cors":         "cors",
		"cors_origin":  "cors-origin",
		"metrics_addr": "metrics-addr",
		"docs_dir":     "docs-dir",
		"log_path":     "log-path",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func (a *app) docsCommand() *cobra.Command {
	var out, style string
	var raw bool
	var width int
	cmd := &cobra.Command{
		Use:   "docs [subpath]",
		Short: "Render the API reference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out != "" {
				if err := docs.WriteDir(out, a.root); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote docs to %s\n", out)
				return nil
			}
			if err := a.root.Seal(); err != nil {
				return err
			}
			reg := a.root
			if len(args) == 1 {
				child, ok := a.root.Child(strings.Trim(args[0], "/"))
				if !ok {
					return fmt.Errorf("no subpath %q", args[0])
				}
				reg = child
			}
			md, err := docs.Markdown(reg)
			if err != nil {
				return err
			}
			if raw {
				_, err = cmd.OutOrStdout().Write(md)
				return err
			}
			rendered, err := renderMarkdown(md, style, width)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "write every page to this directory instead of printing")
	f.BoolVar(&raw, "raw", false, "print Markdown source")
	f.StringVar(&style, "style", "auto", `glamour style: "auto", "dark", "light" or "notty"`)
	f.IntVar(&width, "width", 100, "word wrap width")
	return cmd
}

func renderMarkdown(md []byte, style string, width int) (string, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "auto" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("docs: %w", err)
	}
	return r.Render(string(md))
}

// callError reports an error response from the server.
type callError struct {
	*rpcclient.RPCError
}

func (e *callError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (a *app) callCommand() *cobra.Command {
	var url string
	var headers []string
	cmd := &cobra.Command{
		Use:   "call <method> [params]",
		Short: "Call a method on a running server",
		Long:  "Call a method on a running server. params is a JSON object or array.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			custom := make(map[string]string, len(headers))
			for _, h := range headers {
				k, v, ok := strings.Cut(h, "=")
				if !ok || k == "" {
					return fmt.Errorf("header %q: want key=value", h)
				}
				custom[k] = v
			}
			client := rpcclient.NewClientWithOpts(url, &rpcclient.RPCClientOpts{CustomHeaders: custom})

			var resp *rpcclient.RPCResponse
			var err error
			if len(args) == 2 {
				var params any
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("params: %w", err)
				}
				switch params.(type) {
				case map[string]any, []any:
				default:
					return errors.New("params: must be a JSON object or array")
				}
				resp, err = client.Call(args[0], params)
			} else {
				resp, err = client.Call(args[0])
			}
			if resp != nil && resp.Error != nil {
				return errors.Join(&callError{resp.Error}, printJSON(cmd, resp.Error))
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Result)
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", "http://localhost:8080/", "server URL, including the subpath")
	f.StringArrayVarP(&headers, "header", "H", nil, "request header as key=value; repeatable")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
