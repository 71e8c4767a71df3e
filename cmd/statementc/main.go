// Command statementc compiles a builder command script into a statement
// document and optionally submits it.
//
// Usage:
//
//	statementc --script cmds.json [--label "Statement 1"] [--base doc.json]
//	statementc --script cmds.json --submit --account 7 --backend-url http://localhost:8729
//	statementc --get 42
//	statementc --list --account 7
//	statementc --delete 42
//
// A script is a JSON array of commands, for example
//
//	[{"op": "add", "token": "RSI"}, {"op": "add", "token": "Crossing up"}]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/algomatic/statement-builder/pkg/builder"
	"github.com/algomatic/statement-builder/pkg/session"
	"github.com/algomatic/statement-builder/pkg/statement"
	"github.com/algomatic/statement-builder/pkg/submit"
)

func main() {
	scriptFile := flag.String("script", "", "Path to a JSON command script")
	baseFile := flag.String("base", "", "Statement document to edit instead of starting fresh")
	label := flag.String("label", session.DefaultLabel, "Label for a new statement")
	outputFile := flag.String("output", "", "Path for the statement document (default: stdout)")

	doSubmit := flag.Bool("submit", false, "Submit the compiled statement")
	editID := flag.String("edit", "", "Submit as an edit of this statement id")
	getID := flag.String("get", "", "Print a submitted statement")
	deleteID := flag.String("delete", "", "Delete a submitted statement")
	list := flag.Bool("list", false, "List the account's statements")
	account := flag.String("account", envOrDefault("SB_ACCOUNT", ""), "Account that owns the statement")

	backendURL := flag.String("backend-url", envOrDefault("BACKEND_URL", "http://localhost:8729"), "Strategy persistence service base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout per backend request")
	verbose := flag.Bool("v", false, "Log builder decisions")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	client := submit.NewClient(*backendURL, &submit.Config{Timeout: *timeout, Logger: logger})

	switch {
	case *getID != "":
		s, err := client.GetStatement(ctx, *getID)
		if err != nil {
			fatalf("Error fetching statement: %v", err)
		}
		writeDocument(s, *outputFile)
		return

	case *deleteID != "":
		if err := client.DeleteStatement(ctx, *deleteID); err != nil {
			fatalf("Error deleting statement: %v", err)
		}
		logger.Info("Statement deleted", "statement_id", *deleteID)
		return

	case *list:
		if *account == "" {
			fatalf("Error: --list requires --account")
		}
		rows, err := client.ListStatements(ctx, *account)
		if err != nil {
			fatalf("Error listing statements: %v", err)
		}
		for _, r := range rows {
			fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Side, r.Label, r.Instrument)
		}
		return
	}

	if *scriptFile == "" {
		fmt.Fprintln(os.Stderr, "Error: must specify --script, --get, --list or --delete")
		flag.Usage()
		os.Exit(1)
	}

	s := statement.New(*label)
	if *baseFile != "" {
		data, err := os.ReadFile(*baseFile)
		if err != nil {
			fatalf("Error reading base document: %v", err)
		}
		if s, err = statement.Decode(data); err != nil {
			fatalf("Error decoding base document: %v", err)
		}
	}

	cmds, err := loadScript(*scriptFile)
	if err != nil {
		fatalf("Error loading script: %v", err)
	}

	b := builder.New(nil, &builder.Options{Logger: logger})
	applied := 0
	for i, cmd := range cmds {
		out, err := b.Execute(s, cmd, nil)
		if err != nil {
			fatalf("Error in command %d (%s): %v", i+1, cmd.Op, err)
		}
		if !out.Applied {
			logger.Warn("Command ignored", "index", i+1, "op", cmd.Op, "token", cmd.Token, "reason", out.Reason)
			continue
		}
		applied++
	}
	logger.Info("Compiled statement",
		"commands", len(cmds),
		"applied", applied,
		"conditions", len(s.Conditions),
		"risk_rules", len(s.RiskRules),
		"timeframes", s.RequiredTimeframes(),
	)

	for _, issue := range s.Issues() {
		logger.Warn("Statement incomplete", "issue", issue)
	}

	if *doSubmit || *editID != "" {
		if err := s.CheckSubmittable(); err != nil {
			fatalf("Error: %v", err)
		}
		var res *submit.Result
		if *editID != "" {
			res, err = client.EditStatement(ctx, *editID, s)
		} else {
			if *account == "" {
				fatalf("Error: --submit requires --account")
			}
			res, err = client.CreateStatement(ctx, *account, s)
		}
		if err != nil {
			fatalf("Error submitting statement: %v", err)
		}
		logger.Info("Statement submitted", "statement_id", res.ID, "timeframes_required", res.TimeframesRequired)
	}

	writeDocument(s, *outputFile)
}

func loadScript(path string) ([]builder.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cmds []builder.Command
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cmds, nil
}

func writeDocument(s *statement.Statement, path string) {
	doc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fatalf("Error encoding statement: %v", err)
	}
	doc = append(doc, '\n')

	if path == "" {
		os.Stdout.Write(doc)
		return
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		fatalf("Error writing %s: %v", path, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
