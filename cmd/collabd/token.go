package main

import (
	"fmt"
	"time"

	"collab/api/internal/auth"
	"collab/api/internal/store"
	"collab/api/internal/util"

	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <username-or-email>",
	Short: "Issue an access token for a user",
	Long:  `Issue a signed access token for an existing user. Intended for local testing of websocket clients.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		user, err := store.NewPostgresStore(db).GetUserByLogin(ctx, args[0])
		if err != nil {
			return fmt.Errorf("lookup user %q: %w", args[0], err)
		}
		if !user.IsActive {
			return fmt.Errorf("user %q is inactive", user.Username)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.AccessTTL
		}
		token, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.Claims{
			Sub:  user.ID,
			Name: user.Username,
			Kind: auth.KindAccess,
			JTI:  util.NewID("jti"),
			Exp:  time.Now().Add(ttl).Unix(),
		})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to COLLAB_ACCESS_TTL)")
}
