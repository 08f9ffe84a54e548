package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hitoshi/smolhub/internal/client/hub"
)

func newDownloadCommand(flags *globalFlags, out, errOut io.Writer) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <model_id>",
		Short: "Download a model file from the catalog",
		Long: `Download the file of a catalogued model into the output directory.
The file keeps its original name. Requests use --api-key (or SMOLHUB_API_KEY)
when given, otherwise the credentials saved by the interactive shell.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, errOut)
			if err != nil {
				return err
			}

			// 保存済みの資格情報はAPIキーがない場合だけ使う
			var tokens hub.TokenFunc = hub.Anonymous
			if cfg.APIKey == "" {
				client, err := hub.NewClient(cfg.APIURL, nil)
				if err != nil {
					return err
				}
				tokens = hub.NewIdentityClient(client, hub.NewFileCredentialStore(cfg.CredentialsPath), log).AccessToken
			}

			dest, err := newDownloader(cfg, tokens, errOut, log).Download(cmd.Context(), args[0], outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Model downloaded successfully to: %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "./", "directory to save the model file")
	return cmd
}
