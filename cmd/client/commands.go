package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/agent"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/apiclient"
	"github.com/spf13/cobra"
)

const defaultURL = "http://localhost:8000"

var (
	serverURL  string
	timeout    time.Duration
	sessionID  string
	collection string
	stream     bool

	client *apiclient.Client

	rootCmd = &cobra.Command{
		Use:   "guard-client",
		Short: "Console client for the guard agent API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = apiclient.New(serverURL, timeout)
		},
	}

	queryCmd = &cobra.Command{
		Use:   "query [question]",
		Short: "Send a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	historyCmd = &cobra.Command{
		Use:   "history [thread_id]",
		Short: "Show the history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd, resp)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List active conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%d active conversations (%s)\n", resp.TotalCount, resp.MemoryApproach)
			for _, thread := range resp.ActiveThreads {
				cmd.Printf("  %s\n", thread)
			}
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear [thread_id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the guardrails configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE:  runChat,
	}
)

func init() {
	url := os.Getenv("GUARD_AGENT_URL")
	if url == "" {
		url = defaultURL
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "url", url, "Guard agent base URL (env GUARD_AGENT_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")

	for _, cmd := range []*cobra.Command{queryCmd, chatCmd} {
		cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Conversation thread id")
		cmd.Flags().StringVarP(&collection, "collection", "c", "", "MongoDB collection")
		cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer")
	}

	rootCmd.AddCommand(queryCmd, historyCmd, listCmd, clearCmd, healthCmd, statusCmd, chatCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	_, err := ask(cmd, strings.Join(args, " "))
	return err
}

// ask sends one question and returns the session id to keep using.
func ask(cmd *cobra.Command, question string) (string, error) {
	request := agent.QueryRequest{Query: question, SessionID: sessionID, Collection: collection}

	if stream {
		id, err := client.QueryStream(cmd.Context(), request, func(chunk string) {
			cmd.Print(chunk)
		})
		cmd.Println()
		if err != nil {
			return id, describe(err)
		}
		return id, nil
	}

	resp, err := client.Query(cmd.Context(), request)
	if err != nil {
		return "", describe(err)
	}

	cmd.Println(resp.Result)
	if resp.DataSaved {
		cmd.Printf("(%d documents saved to %s)\n", resp.DocumentCount, resp.FilePath)
	}
	return resp.SessionID, nil
}

func describe(err error) error {
	if apiclient.IsViolation(err) {
		return fmt.Errorf("blocked by guardrails: %w", err)
	}
	return err
}

func printHistory(cmd *cobra.Command, resp agent.HistoryResponse) {
	cmd.Printf("Thread %s: %d messages\n", resp.ThreadID, resp.TotalMessages)
	for _, msg := range resp.ConversationHistory {
		cmd.Printf("[%s] %s\n", msg.Type, msg.Content)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
