package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/chatbridge/internal/render"
	"github.com/GriffinCanCode/chatbridge/pkg/client"
)

var chatFlags struct {
	server string
	stream bool
	html   bool
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running server from the terminal",
	Long: `Start a session on a running chatbridge server and read messages from stdin,
one per line. The session is stopped on exit (EOF, /quit or Ctrl-C).`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.server, "server", "http://127.0.0.1:10000", "server base URL")
	chatCmd.Flags().BoolVar(&chatFlags.stream, "stream", true, "print replies as they stream")
	chatCmd.Flags().BoolVar(&chatFlags.html, "html", false, "request markup and print it as formatted text")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := client.New(chatFlags.server)
	return chat(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
}

func chat(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	id, err := c.Start(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer func() {
		_ = c.Stop(context.Background(), id)
	}()
	fmt.Fprintf(out, "Session %s started. Type /quit to exit.\n", id)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		if err := ask(ctx, c, id, line, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func ask(ctx context.Context, c *client.Client, id, message string, out io.Writer) error {
	if chatFlags.stream && !chatFlags.html {
		reply, err := c.Stream(ctx, id, message, func(d string) { fmt.Fprint(out, d) })
		if err != nil {
			return err
		}
		if !reply.OK() {
			fmt.Fprint(out, reply.Response)
		}
		fmt.Fprintln(out)
		return nil
	}

	format := ""
	if chatFlags.html {
		format = render.FormatHTML
	}
	reply, err := c.Message(ctx, id, message, format)
	if err != nil {
		return err
	}
	text := reply.Response
	if reply.HTML != "" {
		if plain, err := render.PlainText(reply.HTML); err == nil {
			text = plain
		}
	}
	fmt.Fprintln(out, text)
	return nil
}
