package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/deid/internal/domain/deid"
	"github.com/ehr/deid/internal/platform/redisstore"
)

// maxLineBytes bounds a single NDJSON resource.
const maxLineBytes = 16 << 20

func anonymizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Anonymize an NDJSON file of FHIR resources offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, _ := cmd.Flags().GetString("in")
			outPath, _ := cmd.Flags().GetString("out")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			engine, err := newEngine(cfg, logger, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc := deid.NewService(nil, engine, logger)
			if cfg.RedisURL != "" {
				store, err := redisstore.New(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}
				defer store.Close()
				svc.SetMappingStore(store)
				if _, err := svc.Rehydrate(ctx); err != nil {
					return err
				}
			}

			in, closeIn, err := openInput(inPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()
			out, closeOut, err := openOutput(outPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()

			summary, err := anonymizeStream(ctx, svc, in, out)
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), summary)
			if summary.Succeeded == 0 && summary.Failed > 0 {
				return fmt.Errorf("no resources anonymized")
			}
			return nil
		},
	}
	cmd.Flags().String("in", "-", "Input NDJSON file, - for stdin")
	cmd.Flags().String("out", "-", "Output NDJSON file, - for stdout")
	return cmd
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

type lineFailure struct {
	Line  int
	Error string
}

type streamSummary struct {
	Succeeded int
	Failed    int
	Warnings  int
	ByKind    map[string]int
	Failures  []lineFailure
}

// anonymizeStream reads one resource per line, anonymizes them as one batch
// and writes the successes in input order. Blank lines are skipped.
func anonymizeStream(ctx context.Context, svc *deid.Service, in io.Reader, out io.Writer) (*streamSummary, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []json.RawMessage
	var lines []int
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		docs = append(docs, json.RawMessage(append([]byte(nil), line...)))
		lines = append(lines, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	outcome := svc.AnonymizeDocuments(ctx, docs)
	summary := &streamSummary{
		Succeeded: outcome.Succeeded,
		Failed:    outcome.Failed,
		ByKind:    outcome.ByKind,
	}
	w := bufio.NewWriter(out)
	for _, item := range outcome.Items {
		if item.Error != "" {
			summary.Failures = append(summary.Failures, lineFailure{Line: lines[item.Index], Error: item.Error})
			continue
		}
		summary.Warnings += len(item.Warnings)
		if _, err := w.Write(item.Resource); err != nil {
			return nil, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	return summary, nil
}

func printSummary(w io.Writer, s *streamSummary) {
	fmt.Fprintf(w, "Anonymized %d resource(s), %d failed, %d warning(s).\n", s.Succeeded, s.Failed, s.Warnings)
	for kind, n := range s.ByKind {
		fmt.Fprintf(w, "  %-20s %d\n", kind, n)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  line %d: %s\n", f.Line, f.Error)
	}
}
