package main

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /history  show this conversation
  /new      start a new conversation
  /stream   toggle streaming
  /quit     exit`

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	_, err := client.Health(ctx)
	cancel()
	if err != nil {
		return err
	}

	cmd.Println("Connected to", serverURL)
	cmd.Println(chatHelp)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit", "quit", "exit", "bye":
			return nil
		case "/new":
			sessionID = ""
			cmd.Println("Started a new conversation")
			continue
		case "/stream":
			stream = !stream
			cmd.Println("Streaming:", stream)
			continue
		case "/history":
			if sessionID == "" {
				cmd.Println("No conversation yet")
				continue
			}
			resp, err := client.History(cmd.Context(), sessionID)
			if err != nil {
				cmd.PrintErrln("Error:", err)
				continue
			}
			printHistory(cmd, resp)
			continue
		case "/help":
			cmd.Println(chatHelp)
			continue
		}

		id, err := ask(cmd, line)
		if err != nil {
			cmd.PrintErrln("Error:", err)
		}
		if id != "" {
			sessionID = id
		}
	}

	return scanner.Err()
}
