package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/orchestra/pkg/orchestrator"
	"github.com/pario-ai/orchestra/pkg/textmetrics"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		opts  orchestrator.AnalyzeOptions
		parts []string
	)
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze entities, keywords, topics and sentiment of a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			for _, p := range parts {
				opts.Parts = append(opts.Parts, orchestrator.AnalysisPart(p))
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			report, err := s.AnalyzeContent(cmd.Context(), a.caller, text, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model override")
	cmd.Flags().StringSliceVar(&parts, "parts", nil, "analyses to run: entities, keywords, topics, sentiment, dependencies, pos")
	cmd.Flags().BoolVar(&opts.SkipMetrics, "no-metrics", false, "skip local readability metrics")
	return cmd
}

func newSEOCmd(a *app) *cobra.Command {
	var opts orchestrator.SEOOptions
	cmd := &cobra.Command{
		Use:   "seo [content]",
		Short: "Suggest search engine optimizations for content",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.GenerateSEOSuggestions(cmd.Context(), a.caller, content, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model override")
	cmd.Flags().StringSliceVar(&opts.TargetKeywords, "keywords", nil, "target keywords")
	return cmd
}

// newMetricsCmd computes readability metrics locally without any provider.
func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [text]",
		Short: "Compute readability metrics locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			r := textmetrics.Analyze(text)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Words\t%d\n", r.Words)
			fmt.Fprintf(w, "Sentences\t%d\n", r.Sentences)
			fmt.Fprintf(w, "Paragraphs\t%d\n", r.Paragraphs)
			fmt.Fprintf(w, "Headings\t%d\n", r.Headings)
			fmt.Fprintf(w, "Flesch-Kincaid\t%.2f (%s)\n", r.FleschKincaid, r.ReadingLevel)
			fmt.Fprintf(w, "Complex words\t%.2f%%\n", r.ComplexWordPercentage)
			fmt.Fprintf(w, "Avg sentence length\t%.2f\n", r.AverageSentenceLength)
			fmt.Fprintf(w, "Passive voice\t%d\n", r.PassiveVoice)
			fmt.Fprintf(w, "Transition words\t%d\n", r.TransitionWords)
			fmt.Fprintf(w, "Reading time\t%.1f min\n", r.ReadingMinutes)
			return w.Flush()
		},
	}
}
