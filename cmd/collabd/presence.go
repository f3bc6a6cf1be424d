package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	presenceServer string
	presenceToken  string
)

type presenceUser struct {
	UserID   string `json:"user_id"`
	UserInfo struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	} `json:"user_info"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

type presenceResponse struct {
	ProjectID   string         `json:"project_id"`
	ActiveUsers []presenceUser `json:"active_users"`
	Total       int            `json:"total"`
}

var presenceCmd = &cobra.Command{
	Use:   "presence <project-id>",
	Short: "Show who is connected to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if presenceToken == "" {
			return fmt.Errorf("--token is required")
		}
		url := strings.TrimRight(presenceServer, "/") + "/api/projects/" + args[0] + "/users"
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+presenceToken)

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request presence: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}

		var presence presenceResponse
		if err := json.NewDecoder(resp.Body).Decode(&presence); err != nil {
			return fmt.Errorf("decode presence: %w", err)
		}

		fmt.Printf("Project %s: %d connected\n", presence.ProjectID, presence.Total)
		if presence.Total == 0 {
			return nil
		}
		fmt.Println()
		now := time.Now()
		for _, user := range presence.ActiveUsers {
			idle := now.Sub(user.LastActivity).Round(time.Second)
			name := user.UserInfo.Username
			if user.UserInfo.FullName != "" {
				name += " (" + user.UserInfo.FullName + ")"
			}
			if idle < time.Minute {
				color.Green("\tactive:  %s\n", name)
			} else {
				color.Yellow("\tidle %s:  %s\n", idle, name)
			}
		}
		return nil
	},
}

func init() {
	presenceCmd.Flags().StringVar(&presenceServer, "server", "http://localhost:8000", "collab server base URL")
	presenceCmd.Flags().StringVar(&presenceToken, "token", "", "access token")
}
