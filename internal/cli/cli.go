// Package cli implements printctl, the command-line client of the print
// server.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	appName       = "printctl"
	serverEnv     = "POSPRINT_URL"
	defaultServer = "http://localhost:8080"
)

// CLI holds shared state for all commands.
type CLI struct {
	out     io.Writer
	in      io.Reader
	server  string
	timeout time.Duration
	version string
}

func New(out io.Writer, in io.Reader, version string) *CLI {
	return &CLI{out: out, in: in, version: version}
}

func (c *CLI) client() *Client {
	return NewClient(c.server, c.timeout)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "printctl drives a posprint receipt server",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVarP(&c.server, "server", "s", server, "print server base URL (env "+serverEnv+")")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "HTTP request timeout")

	root.AddCommand(c.statusCommand())
	root.AddCommand(c.drawerCommand())
	root.AddCommand(c.cutCommand())
	root.AddCommand(c.textCommand())
	root.AddCommand(c.pdfCommand())
	root.AddCommand(c.clearCommand())
	root.AddCommand(c.printersCommand())
	root.AddCommand(c.journalCommand())
	root.AddCommand(c.smokeCommand())

	return root
}

func (c *CLI) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show printer and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			c.printStatus(s)
			return nil
		},
	}
}

func (c *CLI) printStatus(s Status) {
	c.title("Print server")
	c.keyValue("status", s.Status)
	c.keyValue("backend", s.Backend)
	if s.DefaultPrinter != nil {
		c.keyValue("default printer", *s.DefaultPrinter)
	} else {
		c.keyValue("default printer", "none")
	}
	if s.BacklogDepth < 0 {
		c.keyValue("device backlog", "unknown")
	} else {
		c.keyValue("device backlog", s.BacklogDepth)
	}
	c.keyValue("queue", fmt.Sprintf("%d/%d", s.Queue.Pending, s.Queue.Capacity))
	c.keyValue("consecutive failures", s.Queue.ConsecutiveFailures)
	c.keyValue("processed", s.Queue.Processed)
	c.keyValue("failed", s.Queue.Failed)
	c.keyValue("dropped", s.Queue.Dropped)
	c.keyValue("purges", s.Queue.Purges)
	if s.Today != nil {
		c.keyValue("today", fmt.Sprintf("%d ok, %d failed, %d bytes", s.Today.Succeeded, s.Today.Failed, s.Today.Bytes))
	}
}

func (c *CLI) drawerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drawer",
		Short: "Open the cash drawer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.client().OpenDrawer(cmd.Context())
			if err != nil {
				return err
			}
			c.result(r)
			return nil
		},
	}
}

func (c *CLI) cutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cut",
		Short: "Cut the paper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.client().CutPaper(cmd.Context())
			if err != nil {
				return err
			}
			c.result(r)
			return nil
		},
	}
}

func (c *CLI) textCommand() *cobra.Command {
	var noCut bool
	var qrPath string

	cmd := &cobra.Command{
		Use:   "text [file]",
		Short: "Print a plain-text ticket (reads stdin without a file or with -)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src string
			if len(args) == 1 {
				src = args[0]
			}
			body, err := c.readInput(src)
			if err != nil {
				return err
			}
			var qr []byte
			if qrPath != "" {
				if qr, err = os.ReadFile(qrPath); err != nil {
					return fmt.Errorf("read qr image: %w", err)
				}
			}
			r, err := c.client().PrintText(cmd.Context(), string(body), !noCut, qr)
			if err != nil {
				return err
			}
			c.result(r)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCut, "no-cut", false, "do not cut after the ticket")
	cmd.Flags().StringVar(&qrPath, "qr", "", "image file printed as a QR code above the text")
	return cmd
}

func (c *CLI) pdfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pdf <file>",
		Short: "Print a PDF document page by page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.readInput(args[0])
			if err != nil {
				return err
			}
			r, err := c.client().PrintPDF(cmd.Context(), data)
			if err != nil {
				return err
			}
			c.result(r)
			return nil
		},
	}
}

func (c *CLI) clearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Purge every job waiting in the printer queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.client().ClearQueue(cmd.Context())
			if err != nil {
				return err
			}
			c.result(r)
			return nil
		},
	}
}

func (c *CLI) printersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List printers visible to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.client().Printers(cmd.Context())
			if err != nil {
				return err
			}
			c.title(fmt.Sprintf("%d printer(s)", p.Count))
			for _, name := range p.Printers {
				if name == p.Default {
					fmt.Fprintln(c.out, "  "+styleValue.Render(name)+" "+styleDim.Render("(default)"))
					continue
				}
				fmt.Fprintln(c.out, "  "+styleValue.Render(name))
			}
			return nil
		},
	}
}

func (c *CLI) journalCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent job outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := c.client().Journal(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, o := range j.Outcomes {
				line := fmt.Sprintf("%s  %-10s %6d bytes  %s", o.StartedAt.Local().Format("15:04:05"), o.Kind, o.Bytes, o.JobID)
				if o.Success {
					c.success("%s", line)
				} else {
					c.failure("%s", line)
					c.detail("%s", o.Error)
				}
			}
			if j.Count == 0 {
				c.detail("no jobs recorded")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of outcomes to show")
	return cmd
}

const sampleTicket = `================================
          SAMPLE STORE
================================
Register: 1
Ticket: 1234

Item 1              10.00
Item 2              20.00
Item 3              15.00

TOTAL:              45.00
================================
        THANK YOU, COME AGAIN
================================
`

type check struct {
	name string
	run  func(context.Context) error
}

// smokeCommand exercises every endpoint in turn and reports which ones
// answered successfully.
func (c *CLI) smokeCommand() *cobra.Command {
	var pdfPath string
	var pause time.Duration

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run a status, drawer, cut, text and optional PDF check against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := c.client()
			ctx := cmd.Context()

			steps := []check{
				{"status", func(ctx context.Context) error { _, err := cl.Status(ctx); return err }},
				{"open drawer", func(ctx context.Context) error { _, err := cl.OpenDrawer(ctx); return err }},
				{"cut paper", func(ctx context.Context) error { _, err := cl.CutPaper(ctx); return err }},
				{"print text", func(ctx context.Context) error { _, err := cl.PrintText(ctx, sampleTicket, true, nil); return err }},
			}
			if pdfPath != "" {
				steps = append(steps, check{"print pdf", func(ctx context.Context) error {
					data, err := os.ReadFile(pdfPath)
					if err != nil {
						return err
					}
					_, err = cl.PrintPDF(ctx, data)
					return err
				}})
			} else {
				c.warning("no --pdf given, skipping the PDF check")
			}

			failed := 0
			for i, s := range steps {
				if i > 0 && pause > 0 {
					select {
					case <-time.After(pause):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if err := s.run(ctx); err != nil {
					failed++
					c.failure("%s", s.name)
					c.detail("%v", err)
					continue
				}
				c.success("%s", s.name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(steps))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF file to print as the last check")
	cmd.Flags().DurationVar(&pause, "pause", time.Second, "pause between checks")
	return cmd
}

// readInput reads a file, or stdin for "" and "-".
func (c *CLI) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(c.in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", strings.TrimSpace(path), err)
	}
	return b, nil
}
