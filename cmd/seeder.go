package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	seedAdminUsername string
	seedAdminEmail    string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the bootstrap admin user",
	Long:  `Create the initial admin account so the instance can be logged into. Safe to re-run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		var exists int
		err = db.QueryRow("SELECT 1 FROM users WHERE username = $1", seedAdminUsername).Scan(&exists)
		if err == nil {
			fmt.Println("admin user already exists:", seedAdminUsername)
			return
		}

		cost := cfg.Security.BCryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), cost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		_, err = db.Exec(
			"INSERT INTO users (username, email, password_hash, is_admin, created_at) VALUES ($1, $2, $3, true, now())",
			seedAdminUsername, seedAdminEmail, string(hash),
		)
		if err != nil {
			log.Fatalf("failed to insert admin user: %v", err)
		}

		fmt.Println("Seeded admin user:", seedAdminUsername)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "admin", "username of the bootstrap admin")
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@localhost", "email of the bootstrap admin")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password of the bootstrap admin (required)")
	seedCmd.MarkFlagRequired("admin-password")
}
