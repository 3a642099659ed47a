package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/crystal-mush/kmud/pkg/archive"
	"github.com/crystal-mush/kmud/pkg/server"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var restoreOverwrite bool

// backupCmd takes an archive of the store, text files and config.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the store, text files and config",
	Long: `Write a .tar.gz archive into archive_dir holding a consistent
snapshot of the store, the text directory and the config file, then
prune old archives down to archive_retain.

Do not run this against a bolt store that a live server holds open;
bolt locks its file. Use archive_interval on the server instead.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

// restoreCmd unpacks an archive over the configured paths.
var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Restore the store, text files and config from an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace existing files")
	backupCmd.AddCommand(backupListCmd)
	rootCmd.AddCommand(backupCmd, restoreCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	path, err := server.CreateBackup(cfg, configPath, st)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infos, err := archive.List(cfg.ArchiveDir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No archives in %s\n", cfg.ArchiveDir)
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTAKEN\tDRIVER\tSIZE")
	for _, ai := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ai.Filename, ai.Timestamp, ai.Driver, humanize.Bytes(uint64(ai.Size)))
	}
	return w.Flush()
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return restoreArchive(cfg, args[0], restoreOverwrite)
}
