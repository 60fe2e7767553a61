package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"hashscope/internal/auth"
	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

// init-admin promotes a wallet to admin, creating the account first if it has
// never logged in. Intended for one-time bootstrap; admins log in with the
// same wallet-signature flow as everyone else.
func main() {
	fmt.Println("HashScope - Bootstrap Admin Initialization")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	wallet := os.Getenv("ADMIN_WALLET_ADDRESS")
	if wallet == "" {
		fmt.Fprintf(os.Stderr, "ERROR: ADMIN_WALLET_ADDRESS must be set\n")
		os.Exit(1)
	}
	if !utils.IsValidAddress(wallet) {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid wallet address: %s\n", wallet)
		os.Exit(1)
	}
	wallet = utils.NormalizeAddress(wallet)

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		APIKeyCacheSize: 10, // minimal cache for the init tool
		APIKeyCacheTTL:  5 * time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Database connection established")

	repo := storage.NewUserRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := repo.GetByWallet(ctx, wallet)
	switch {
	case err == nil:
		if user.IsAdmin {
			fmt.Printf("INFO: %s is already an admin\n", wallet)
			fmt.Println("Exiting successfully (no action taken)")
			return
		}
		if err := repo.SetAdmin(ctx, user.ID, true); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to promote user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("SUCCESS: Promoted existing account %s to admin\n", wallet)

	case errors.Is(err, storage.ErrUserNotFound):
		nonce, err := auth.GenerateNonce()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to generate login nonce: %v\n", err)
			os.Exit(1)
		}
		user = &models.User{
			WalletAddress: wallet,
			IsAdmin:       true,
			Nonce:         nonce,
		}
		if err := repo.Create(ctx, user); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("SUCCESS: Created admin account for %s\n", wallet)

	default:
		fmt.Fprintf(os.Stderr, "ERROR: Failed to look up wallet: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ID: %s\n", user.ID)
	fmt.Println("\nThe wallet can now log in through /api/v1/auth and will have admin rights.")
	fmt.Println("For security, remove ADMIN_WALLET_ADDRESS from your environment.")
}
