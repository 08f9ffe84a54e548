// Package cli はsmolhubクライアントのコマンドラインを提供する。
//
// 引数なしで起動すると対話シェルを開き、downloadサブコマンドはモデルファイルを1つ保存して終了する。
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/smolhub/internal/client/authflow"
	"github.com/hitoshi/smolhub/internal/client/config"
	"github.com/hitoshi/smolhub/internal/client/download"
	"github.com/hitoshi/smolhub/internal/client/hub"
	"github.com/hitoshi/smolhub/internal/client/notify"
	"github.com/hitoshi/smolhub/internal/client/session"
	"github.com/hitoshi/smolhub/internal/client/shell"
	"github.com/hitoshi/smolhub/internal/client/upload"
	"github.com/hitoshi/smolhub/internal/logger"
	"github.com/hitoshi/smolhub/internal/role"
	"github.com/hitoshi/smolhub/internal/security"
)

// globalFlags は全コマンド共通のフラグ。
type globalFlags struct {
	configPath string
	apiKey     string
}

// NewRootCommand はsmolhubのルートコマンドを生成する。
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "smolhub [path]",
		Short: "Browse, upload and download small models",
		Long: `smolhub is a terminal client for a SmolHub model catalog.
Without arguments it opens an interactive shell on the catalog home page.
Pass a path such as /model/<id> to open a different page first.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, errOut)
			if err != nil {
				return err
			}
			start := ""
			if len(args) == 1 {
				start = args[0]
			}
			return runShell(cmd.Context(), cfg, log, in, out, start)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/smolhub/config.yaml)")
	root.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "access token for the catalog API (env SMOLHUB_API_KEY)")

	root.AddCommand(newDownloadCommand(flags, out, errOut))
	return root
}

// ExecuteContext はos標準入出力でルートコマンドを実行する。
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// setup は設定を読み込み、クライアント用のロガーを構成する。
func setup(flags *globalFlags, errOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.apiKey != "" {
		cfg.APIKey = flags.apiKey
	}

	logger.SetupConsole(errOut, logger.ParseLevel(cfg.LogLevel))
	return cfg, slog.Default(), nil
}

// runShell はプロセス全体で1つのSession Storeを持つ対話シェルを組み立てて実行する。
func runShell(ctx context.Context, cfg *config.Config, log *slog.Logger, in io.Reader, out io.Writer, start string) error {
	client, err := hub.NewClient(cfg.APIURL, &http.Client{})
	if err != nil {
		return err
	}

	identity := hub.NewIdentityClient(client, hub.NewFileCredentialStore(cfg.CredentialsPath), log)
	rows := hub.NewRowClient(client, identity.AccessToken)
	blobs := hub.NewBlobClient(client, identity.AccessToken)
	resolver := role.NewResolver(cfg.RolePolicy, rows)

	store := session.NewStore(identity, resolver, session.Options{
		FetchTimeout: cfg.StepTimeout,
		Logger:       log,
	})
	surface := notify.NewTerminal(out)

	var sh *shell.Shell
	flow := authflow.NewFlow(identity, rows, cfg.RolePolicy, surface, func(path string) {
		sh.Navigate(path)
	}, authflow.Options{StepTimeout: cfg.StepTimeout, Logger: log})

	pipeline := upload.NewPipeline(identity, resolver, rows, blobs, upload.Config{
		IDPolicy:    cfg.IDPolicy,
		Bucket:      cfg.Bucket,
		MaxFileSize: cfg.MaxFileSize,
		StepTimeout: cfg.StepTimeout,
	}, log)

	reader := bufio.NewReader(in)
	var password shell.PasswordReader
	if f, ok := in.(*os.File); ok {
		password = shell.TerminalPassword(f, reader)
	}

	sh = shell.New(shell.Deps{
		Store:      store,
		Auth:       flow,
		Catalog:    rows,
		Uploader:   pipeline,
		Downloader: newDownloader(cfg, identity.AccessToken, out, log),
		Sanitizer:  security.NewContentSanitizer(),
		Surface:    surface,
	}, shell.Options{
		In:       reader,
		Out:      out,
		Password: password,
		PageSize: cfg.PageSize,
		Logger:   log,
	})
	return sh.Run(ctx, start)
}

// newDownloader はダウンロード専用のHTTPクライアントでDownloaderを生成する。
// API URLがSSRFガードに拒否された場合は、Downloadのたびにその理由を返す。
func newDownloader(cfg *config.Config, tokens hub.TokenFunc, progress io.Writer, log *slog.Logger) shell.Downloader {
	httpClient, err := download.NewHTTPClient(cfg.APIURL, cfg.AllowPrivateNetwork, cfg.DownloadTimeout)
	if err != nil {
		log.Warn("downloads disabled", slog.String("error", err.Error()))
		return unavailableDownloader{err: err}
	}
	client, err := hub.NewClient(cfg.APIURL, httpClient)
	if err != nil {
		return unavailableDownloader{err: err}
	}
	if cfg.APIKey != "" {
		key := cfg.APIKey
		tokens = func(context.Context) (string, error) { return key, nil }
	}
	return download.NewDownloader(hub.NewRowClient(client, tokens), hub.NewBlobClient(client, tokens), download.Options{
		Bucket:   cfg.Bucket,
		Progress: progress,
		Logger:   log,
	})
}

type unavailableDownloader struct {
	err error
}

func (d unavailableDownloader) Download(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("failed to download model: %w", d.err)
}
