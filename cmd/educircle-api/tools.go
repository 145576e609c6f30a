package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/auth"
	"github.com/Iam-samyog/EduCircle/internal/config"
	"github.com/Iam-samyog/EduCircle/internal/logging"
	"github.com/Iam-samyog/EduCircle/internal/prompts"
)

// newTokenCommand mints a session token for local development.
func newTokenCommand() *cobra.Command {
	var (
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = appConfig.TokenTTL
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueSessionToken(cmd.Context(), auth.Identity{
				UserID:      args[0],
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	return cmd
}

// newAnalyzeCommand runs the ingestion pipeline on a local file.
func newAnalyzeCommand() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a local document and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig := config.Read(viper.GetViper())
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			service, err := newAnalysisService(appConfig, logger)
			if err != nil {
				return err
			}
			if !service.Ready() {
				logger.Warn("GEMINI_API_KEY is not set; analysis will fail")
			}
			fileName := filepath.Base(args[0])
			response, err := service.Analyze(cmd.Context(), analysis.Request{
				Task: prompts.ParseTask(task),
				File: &analysis.Upload{
					FileName:  fileName,
					MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))),
					Data:      data,
				},
			})
			if err != nil {
				return err
			}
			if response.Result.IsFallback() {
				logger.Warn("model output was unusable; printed content is a local fallback", zap.Error(response.Result.Reason))
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(response.Result)
		},
	}
	cmd.Flags().StringVar(&task, "task", string(prompts.TaskAnalyze), "Task: analyze, summary or flashcards")
	return cmd
}
