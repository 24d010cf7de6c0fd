package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/backup"
)

var (
	backupKeep    int
	backupExecute bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List, prune and restore label backups",
	Long: `Backups are created automatically before every mutation as a sibling
directory of the dataset named {dataset}_labels_backup_{YYYYMMDD_HHMMSS}.
They hold a copy of every label file with its relative path.

Example:
  yoloctl backup list --dataset ./ds
  yoloctl backup prune --dataset ./ds --keep 3 --execute
  yoloctl backup restore --dataset ./ds ./ds_labels_backup_20240102_030405 --execute`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups of the dataset, newest first",
	RunE:  runBackupList,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove all but the newest backups",
	Long: `Prune keeps the newest --keep backups (default from config) and removes the
rest. Without --execute the backups that would be removed are only listed.`,
	RunE: runBackupPrune,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-dir>",
	Short: "Copy the label files of a backup back into the dataset",
	Long: `Restore overwrites the dataset's label files with the versions stored in the
backup. Label files created after the backup are left alone. Roster files
are not part of a backup and are not restored.

Without --execute the number of files that would be restored is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

func init() {
	backupPruneCmd.Flags().IntVar(&backupKeep, "keep", 0,
		"Number of backups to keep (default from config)")
	backupPruneCmd.Flags().BoolVar(&backupExecute, "execute", false,
		"Remove the backups (default is preview only)")
	backupRestoreCmd.Flags().BoolVar(&backupExecute, "execute", false,
		"Restore the files (default is preview only)")

	backupCmd.AddCommand(backupListCmd, backupPruneCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupList(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}

	entries, err := backup.NewManager(s.fs, s.log).List(s.ds.Root)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	printHeader("Backups: %s", s.ds.Root)
	if len(entries) == 0 {
		printf("No backups found\n")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{fmt.Sprint(i + 1), e.Timestamp.Format("2006-01-02 15:04:05"), e.Path})
	}
	printTable([]string{"#", "CREATED", "PATH"}, rows)
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	keep := s.cfg.Backup.Keep
	if cmd.Flags().Changed("keep") {
		keep = backupKeep
	}

	removed, err := backup.NewManager(s.fs, s.log).Prune(s.ds.Root, keep, !backupExecute)
	if err != nil {
		return fmt.Errorf("failed to prune backups: %w", err)
	}

	if len(removed) == 0 {
		printf("Nothing to prune (keeping %d)\n", keep)
		return nil
	}
	verb := "Would remove"
	if backupExecute {
		verb = "Removed"
	}
	for _, e := range removed {
		printf("%s %s\n", verb, e.Path)
	}
	if !backupExecute {
		printf("Preview only. Re-run with --execute to remove %d backup(s).\n", len(removed))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := s.signalContext()
	defer cancel()

	src, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid backup path: %w", err)
	}

	if backupExecute {
		release, err := s.acquireLock()
		if err != nil {
			return err
		}
		defer release()
	}

	n, err := backup.NewManager(s.fs, s.log).Restore(ctx, s.ds, src, !backupExecute)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if !backupExecute {
		printf("Would restore %d label file(s) from %s\n", n, src)
		printf("Preview only. Re-run with --execute to restore.\n")
		return nil
	}
	printf("\n=== Restore Complete ===\n")
	printf("Restored %d label file(s) from %s\n", n, src)
	return nil
}
