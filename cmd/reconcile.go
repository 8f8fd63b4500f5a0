package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var reconcileRepair bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare the file registry against the upload directory",
	Long: `Walk every project and report rows without backing files and files
without rows. With --repair, orphan rows are deleted and orphan files are
registered to the project creator.`,
	Run: func(cmd *cobra.Command, args []string) {
		deps, err := initializeDependencies()
		if err != nil {
			log.Fatalf("failed to initialize dependencies: %v", err)
		}
		defer deps.DB.Close()

		reports, err := deps.FileService.ReconcileAll(reconcileRepair)
		if err != nil {
			log.Fatalf("reconcile: %v", err)
		}

		diverged := 0
		for _, report := range reports {
			if report.Clean() {
				continue
			}
			diverged++
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
		}

		fmt.Printf("checked %d projects, %d with divergences\n", len(reports), diverged)
		if diverged > 0 && !reconcileRepair {
			os.Exit(1)
		}
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "repair divergences instead of only reporting them")
}
