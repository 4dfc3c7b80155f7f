// Package cli implements the matcher's command-line interface: an
// interactive shell over a Matcher and table rendering of match results.
package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/smorey2/yojimbo/internal/connector"
	"github.com/smorey2/yojimbo/internal/protocol"
)

// Matcher is the subset of *connector.Matcher used by the CLI.
type Matcher interface {
	RequestMatch(ctx context.Context, protocolID, clientID uint64) error
	GetMatchStatus() connector.MatchStatus
	GetMatchResponse() protocol.MatchResponse
	GetLastError() error
}

// CLI provides an interactive command-line interface.
type CLI struct {
	matcher Matcher
	out     io.Writer

	// protocol ID used when a request names only the client
	protocolID uint64
}

// NewCLI creates a new CLI handler writing to out.
func NewCLI(matcher Matcher, protocolID uint64, out io.Writer) *CLI {
	return &CLI{
		matcher:    matcher,
		out:        out,
		protocolID: protocolID,
	}
}

// Start reads commands from in until EOF, "quit" or ctx is done.
func (c *CLI) Start(ctx context.Context, in io.Reader) {
	fmt.Fprintln(c.out, "matcher ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(in)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Fprint(c.out, "matcher> ")
		if !scanner.Scan() {
			return
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		if cmd == "quit" || cmd == "exit" {
			return
		}

		if err := c.Execute(ctx, cmd, parts[1:]); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Execute runs one command.
func (c *CLI) Execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "request", "match":
		return c.request(ctx, args)
	case "status":
		c.PrintStatus()
	case "response", "show":
		c.PrintResponse()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  request <client_id> [protocol_id]  request a match")
	fmt.Fprintln(c.out, "  status                             show the latest status")
	fmt.Fprintln(c.out, "  response                           show the latest match response")
	fmt.Fprintln(c.out, "  quit                               exit")
}

func (c *CLI) request(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("client id required")
	}
	clientID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid client id: %s", args[0])
	}
	protocolID := c.protocolID
	if len(args) > 1 {
		if protocolID, err = strconv.ParseUint(args[1], 10, 64); err != nil {
			return fmt.Errorf("invalid protocol id: %s", args[1])
		}
	}

	start := time.Now()
	err = c.matcher.RequestMatch(ctx, protocolID, clientID)
	fmt.Fprintf(c.out, "%s in %s\n", c.matcher.GetMatchStatus(), time.Since(start).Round(time.Millisecond))
	if err != nil {
		return err
	}
	c.PrintResponse()
	return nil
}

// PrintStatus shows the latest status and failure cause.
func (c *CLI) PrintStatus() {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Status", "Error Kind", "Error"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	kind, cause := "-", "-"
	if err := c.matcher.GetLastError(); err != nil {
		kind = connector.KindOf(err).String()
		cause = err.Error()
	}
	tw.Append([]string{c.matcher.GetMatchStatus().String(), kind, cause})
	tw.Render()
}

// PrintResponse renders the current response, or a notice when none is READY.
func (c *CLI) PrintResponse() {
	if c.matcher.GetMatchStatus() != connector.MatchReady {
		fmt.Fprintln(c.out, "no match response available")
		return
	}
	resp := c.matcher.GetMatchResponse()
	RenderResponse(c.out, &resp)
}

// RenderResponse writes a match response as two tables: token details and
// the server list in preference order.
func RenderResponse(w io.Writer, resp *protocol.MatchResponse) {
	expires := time.Unix(int64(resp.ConnectTokenExpireTimestamp), 0).UTC()

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Field", "Value"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.Append([]string{"Token Nonce", strconv.FormatUint(resp.ConnectTokenNonce, 10)})
	tw.Append([]string{"Token Expires", expires.Format(time.RFC3339)})
	tw.Append([]string{"Token Data", fingerprint(resp.ConnectTokenData[:])})
	tw.Append([]string{"Client->Server Key", fingerprint(resp.ClientToServerKey[:])})
	tw.Append([]string{"Server->Client Key", fingerprint(resp.ServerToClientKey[:])})
	tw.Render()

	st := tablewriter.NewWriter(w)
	st.SetHeader([]string{"#", "Server", "Type"})
	st.SetBorder(true)
	st.SetAutoWrapText(false)
	for i, addr := range resp.Addresses() {
		st.Append([]string{strconv.Itoa(i + 1), addr.String(), addr.Type().String()})
	}
	st.Render()
}

// fingerprint shows the length and leading bytes of opaque key material.
func fingerprint(b []byte) string {
	n := 8
	if len(b) < n {
		n = len(b)
	}
	return fmt.Sprintf("%d bytes %s...", len(b), hex.EncodeToString(b[:n]))
}
