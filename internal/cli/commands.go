package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docqa-service/internal/pkg/jwtutil"
)

var (
	extractJSON  bool
	askQuestions []string
	askJSON      bool
	tokenSubject string
)

var extractCmd = &cobra.Command{
	Use:   "extract [url]",
	Short: "Fetch a document and print its extracted text",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var askCmd = &cobra.Command{
	Use:   "ask [url]",
	Short: "Answer questions about a document",
	Long: `Runs the full pipeline: extraction, chunking, embedding, retrieval
and answer synthesis. Answers are printed in question order.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var purgeCmd = &cobra.Command{
	Use:   "purge [url]",
	Short: "Delete a document's stored chunks and cached text",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "output result as JSON")
	askCmd.Flags().StringArrayVarP(&askQuestions, "question", "q", nil, "question to ask (repeatable)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output answers as JSON")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "client name recorded in the token")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(extractCmd, askCmd, purgeCmd, tokenCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc QAService) error {
		extracted, err := svc.ExtractText(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("extract failed: %w", err)
		}
		if extractJSON {
			return printJSON(cmd, extracted)
		}
		cmd.Printf("tier: %s\n", extracted.Tier)
		if extracted.Note != "" {
			cmd.Printf("note: %s\n", extracted.Note)
		}
		if extracted.Warning != "" {
			cmd.Printf("warning: %s\n", extracted.Warning)
		}
		cmd.Println()
		cmd.Println(extracted.Text)
		return nil
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	if len(askQuestions) == 0 {
		return errors.New("at least one --question is required")
	}
	return withService(cmd.Context(), func(svc QAService) error {
		result, err := svc.Run(cmd.Context(), args[0], askQuestions)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		if askJSON {
			return printJSON(cmd, result)
		}
		for _, w := range result.Warnings {
			cmd.Printf("warning: %s\n", w)
		}
		for i, answer := range result.Answers {
			cmd.Printf("[%d] %s\n    %s\n", i+1, askQuestions[i], answer)
		}
		return nil
	})
}

func runPurge(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc QAService) error {
		if err := svc.Purge(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}
		cmd.Printf("purged %s\n", args[0])
		return nil
	})
}

func runToken(cmd *cobra.Command, _ []string) error {
	if jwtSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	token, err := jwtutil.GenerateToken(jwtSecret, jwtTTL, tokenSubject)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
