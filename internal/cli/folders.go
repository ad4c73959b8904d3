package cli

import (
	"context"
	"crypto/tls"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/aaronromeo/inboxsync/internal/config"
	"github.com/aaronromeo/inboxsync/internal/imap"
	"github.com/aaronromeo/inboxsync/internal/imap/sessionmanager"
	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/spf13/cobra"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the IMAP folders with their message counts as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFile(); err != nil {
			return err
		}
		imapEnv, err := config.IMAPEnvFromEnv()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return listFolders(ctx, imapEnv, nil, cmd.OutOrStdout())
	},
}

func listFolders(ctx context.Context, imapEnv config.IMAPEnv, tlsConfig *tls.Config, out io.Writer) error {
	client := imap.New(0,
		sessionmanager.WithAddr(imapEnv.Addr()),
		sessionmanager.WithTLSConfig(tlsConfig),
	)
	defer client.Close()

	list, err := client.ListFolders(ctx, mailbox.Credentials{
		Username: imapEnv.User,
		Password: imapEnv.Pass,
	})
	if err != nil {
		return err
	}

	writer := csv.NewWriter(out)
	if err := writer.Write([]string{"Folder", "Messages", "Unseen", "UIDValidity"}); err != nil {
		return err
	}
	for _, f := range list {
		if err := writer.Write([]string{
			f.Name,
			strconv.FormatUint(uint64(f.Messages), 10),
			strconv.FormatUint(uint64(f.Unseen), 10),
			strconv.FormatUint(uint64(f.UIDValidity), 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
