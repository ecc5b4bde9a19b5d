// Command markdown-merger concatenates the markdown artifacts produced by
// pdf-extractor into a single document with a table of contents. Invoked with
// no arguments it walks through an interactive prompt instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/pdfextract/internal/merge"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var (
		inputFolder = flag.String("input-folder", "", "folder containing the markdown files to merge")
		outputFile  = flag.String("output-file", "", "path of the merged output file")
		pattern     = flag.String("pattern", "*.md", "filename glob pattern")
		title       = flag.String("title", "", "title of the merged document")
		noHeaders   = flag.Bool("no-headers", false, "do not add a header per merged file")
		noSeparator = flag.Bool("no-separator", false, "do not add a separator line between files")
	)
	flag.Parse()

	var cfg merge.Config
	if len(os.Args) == 1 {
		cfg = interactiveConfig()
	} else {
		if *inputFolder == "" || *outputFile == "" {
			logger.Error("Both --input-folder and --output-file are required.")
			flag.Usage()
			os.Exit(1)
		}
		cfg = merge.Config{
			InputFolder:  *inputFolder,
			OutputFile:   *outputFile,
			Pattern:      *pattern,
			Title:        *title,
			AddHeaders:   !*noHeaders,
			AddSeparator: !*noSeparator,
		}
	}

	report, err := merge.Merge(cfg, logger)
	if err != nil {
		logger.Error("Merge failed.", "error", err)
		os.Exit(1)
	}
	logger.Info("Done.", "files", report.FileCount, "sizeBytes", report.OutputBytes)
}

// interactiveConfig collects the merge parameters from the terminal.
func interactiveConfig() merge.Config {
	r := bufio.NewReader(os.Stdin)
	fmt.Println("Markdown merge tool")
	fmt.Println("-------------------")

	return merge.Config{
		InputFolder:  prompt(r, "Folder containing the markdown files", ""),
		OutputFile:   prompt(r, "Output file path", "merged.md"),
		Pattern:      prompt(r, "Filename pattern", "*.md"),
		Title:        prompt(r, "Document title (empty for default)", ""),
		AddHeaders:   promptYesNo(r, "Add a header per merged file?", true),
		AddSeparator: promptYesNo(r, "Add a separator line between files?", true),
	}
}

// prompt reads one line, falling back to def on empty input. An empty answer
// to a question without a default re-asks until something is entered, unless
// the default itself is empty and allowed.
func prompt(r *bufio.Reader, question, def string) string {
	for {
		if def != "" {
			fmt.Printf("%s [%s]: ", question, def)
		} else {
			fmt.Printf("%s: ", question)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return def
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
		if def != "" || strings.Contains(question, "empty") {
			return def
		}
		fmt.Println("A value is required.")
	}
}

func promptYesNo(r *bufio.Reader, question string, def bool) bool {
	defStr := "Y/n"
	if !def {
		defStr = "y/N"
	}
	fmt.Printf("%s [%s]: ", question, defStr)
	line, err := r.ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
