// Command chimera runs the generation pipeline behind a console chat loop,
// standing in for the transport actor during development.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DmitrySonora/chimera/breaker"
	"github.com/DmitrySonora/chimera/events"
	"github.com/DmitrySonora/chimera/generation"
	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/pkg/slogx"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/option"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/DmitrySonora/chimera/provider/deepseek"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelDebug}),
	))
}

func main() {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		slog.Error("DEEPSEEK_API_KEY is not set")
		os.Exit(1)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("DEEPSEEK_BASE_URL"); baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	if timeout := os.Getenv("DEEPSEEK_TIMEOUT"); timeout != "" {
		secs, err := strconv.Atoi(timeout)
		if err != nil {
			slog.Error("invalid DEEPSEEK_TIMEOUT", slogx.Error(err))
			os.Exit(1)
		}
		clientOpts = append(clientOpts, option.WithRequestTimeout(time.Duration(secs)*time.Second))
	}

	var sink events.Sink = events.Local()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		conn, err := nats.Connect(natsURL)
		if err != nil {
			slog.Error("failed to connect to NATS", slogx.Error(err))
			os.Exit(1)
		}
		defer conn.Close()
		sink = events.NATS(conn)
	}
	emitter := events.NewEmitter(sink, 0)
	defer emitter.Close()

	brk := breaker.New("deepseek_api", 3, 60*time.Second)

	orch, err := generation.New(deepseek.New(clientOpts...), brk, emitter)
	if err != nil {
		slog.Error("failed to build orchestrator", slogx.Error(err))
		os.Exit(1)
	}
	defer orch.Metrics().LogSummary()

	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		slog.Error("failed to build renderer", slogx.Error(err))
		os.Exit(1)
	}

	handler := generation.NewHandler(orch, "console", func(_ context.Context, _ string, msg messages.Message) error {
		switch m := msg.(type) {
		case messages.BotResponse:
			rendered, err := glam.Render(m.Text)
			if err != nil {
				rendered = m.Text
			}
			fmt.Fprintf(os.Stdout, "%s:%s", color.MagentaString("Chimera"), rendered)
		case messages.Error:
			fmt.Fprintf(os.Stdout, "%s: %s\n", color.RedString("error"), m.Error)
		}
		return nil
	})

	ctx := context.Background()
	mode := "base"
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(bufio.ScanLines)

	fmt.Println("Type a message, /mode <base|talk|expert|creative> to switch, exit to quit.")
	for {
		fmt.Printf("%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return
		case strings.HasPrefix(input, "/mode "):
			mode = strings.TrimSpace(strings.TrimPrefix(input, "/mode "))
			fmt.Printf("mode set to %s\n", mode)
			continue
		}

		req := messages.NewGenerateRequest("console", 0, input)
		req.Mode = mode
		handler.Handle(ctx, req)
	}
}
