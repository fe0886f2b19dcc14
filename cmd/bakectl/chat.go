package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/breadml/bakectl/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a baked model",
	Long: `Start an interactive chat session against the inference endpoint.
The reply streams token by token. Type "exit", "quit", or "q" to leave;
the transcript is kept in memory for the duration of the session only.

Examples:
  bakectl chat --model persona-v1
  bakectl chat --model toolcall-v2 --temperature 0.2 --thinking`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		thinking, _ := cmd.Flags().GetBool("thinking")
		system, _ := cmd.Flags().GetString("system")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if model == "" {
			model = cfg.Chat.Model
		}
		if model == "" {
			return fmt.Errorf("--model is required (or set chat.model in config)")
		}
		if !cmd.Flags().Changed("temperature") {
			temperature = cfg.Chat.Temperature
		}

		session := chat.NewSessionWithBaseURL(cfg.API.Key, cfg.API.InferenceURL, model)
		session.Temperature = temperature
		session.Thinking = thinking
		if system != "" {
			session.SetSystem(system)
		}

		printStep("Chatting with %s (ctrl-d or \"exit\" to leave)", model)
		return chatLoop(cmd, session)
	},
}

func chatLoop(cmd *cobra.Command, session *chat.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			return nil
		}

		fmt.Print(colorize(colorCyan, session.Model+"> "))
		_, err := session.Send(cmd.Context(), input, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			printError("%v", err)
			continue
		}
	}
}

func init() {
	chatCmd.Flags().String("model", "", "model name to chat with")
	chatCmd.Flags().Float64("temperature", 0.7, "sampling temperature")
	chatCmd.Flags().Bool("thinking", false, "enable the model's thinking mode")
	chatCmd.Flags().String("system", "", "optional system prompt")
}
