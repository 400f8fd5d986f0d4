package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/orchestra/pkg/orchestrator"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate text, images, variations and charts",
	}
	cmd.AddCommand(
		newGenerateTextCmd(a),
		newGenerateImageCmd(a),
		newGenerateVariationsCmd(a),
		newEnhanceImageCmd(a),
		newVisualizationCmd(a),
	)
	return cmd
}

func textFlags(cmd *cobra.Command, o *orchestrator.TextOptions, temperature *float64) {
	cmd.Flags().StringVar(&o.Variant, "variant", "", "model variant (general, creative, precise)")
	cmd.Flags().StringVar(&o.Model, "model", "", "provider model override")
	cmd.Flags().IntVar(&o.MaxTokens, "max-tokens", 0, "maximum tokens to generate")
	cmd.Flags().Float64Var(temperature, "temperature", -1, "sampling temperature")
	cmd.Flags().StringVar(&o.System, "system", "", "system instruction")
}

func newGenerateTextCmd(a *app) *cobra.Command {
	var (
		opts        orchestrator.TextOptions
		temperature float64
		stream      bool
	)
	cmd := &cobra.Command{
		Use:   "text [prompt]",
		Short: "Generate text from a prompt (reads stdin without args)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if temperature >= 0 {
				opts.Temperature = orchestrator.Float(temperature)
			}
			ctx := cmd.Context()
			s, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := cmd.OutOrStdout()
			if stream {
				err := s.StreamText(ctx, a.caller, prompt, opts, func(chunk []byte) error {
					_, err := out.Write(chunk)
					return err
				})
				fmt.Fprintln(out)
				return err
			}
			res, err := s.GenerateText(ctx, a.caller, prompt, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res.Text)
			return nil
		},
	}
	textFlags(cmd, &opts, &temperature)
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response as it is generated")
	return cmd
}

func newGenerateImageCmd(a *app) *cobra.Command {
	var opts orchestrator.ImageOptions
	cmd := &cobra.Command{
		Use:   "image [prompt]",
		Short: "Generate images from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.GenerateImage(cmd.Context(), a.caller, prompt, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model override")
	cmd.Flags().StringVar(&opts.Size, "size", "", "image size, e.g. 1024x1024")
	cmd.Flags().IntVar(&opts.N, "n", 0, "number of images")
	cmd.Flags().StringVar(&opts.Style, "style", "", "image style")
	cmd.Flags().StringVar(&opts.Quality, "quality", "", "image quality")
	cmd.Flags().StringVar(&opts.NegativePrompt, "negative", "", "negative prompt")
	return cmd
}

func newGenerateVariationsCmd(a *app) *cobra.Command {
	var (
		opts        orchestrator.VariationOptions
		temperature float64
	)
	cmd := &cobra.Command{
		Use:   "variations [prompt]",
		Short: "Generate several alternative texts for a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if temperature >= 0 {
				opts.Temperature = orchestrator.Float(temperature)
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.GenerateVariations(cmd.Context(), a.caller, prompt, opts)
			if err != nil {
				return err
			}
			for i, v := range res {
				fmt.Fprintf(cmd.OutOrStdout(), "--- %d ---\n%s\n", i+1, v.Text)
			}
			return nil
		},
	}
	textFlags(cmd, &opts.TextOptions, &temperature)
	cmd.Flags().IntVarP(&opts.Count, "count", "n", orchestrator.DefaultVariations, "number of variations")
	return cmd
}

func newEnhanceImageCmd(a *app) *cobra.Command {
	var (
		opts     orchestrator.EnhanceOptions
		strength float64
	)
	cmd := &cobra.Command{
		Use:   "enhance <image-url-or-base64>",
		Short: "Enhance an existing image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strength >= 0 {
				opts.Strength = orchestrator.Float(strength)
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.EnhanceImage(cmd.Context(), a.caller, args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model override")
	cmd.Flags().StringSliceVar(&opts.Operations, "op", nil, "enhancement operations (repeatable)")
	cmd.Flags().Float64Var(&strength, "strength", -1, "enhancement strength 0..1")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "describe the desired result")
	return cmd
}

func newVisualizationCmd(a *app) *cobra.Command {
	var (
		opts     orchestrator.VisualizationOptions
		dataFile string
	)
	cmd := &cobra.Command{
		Use:   "visualization [description]",
		Short: "Design a chart for a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			description, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var data any
			if dataFile != "" {
				raw, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("read data: %w", err)
				}
				if err := json.Unmarshal(raw, &data); err != nil {
					return fmt.Errorf("parse data: %w", err)
				}
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.GenerateVisualization(cmd.Context(), a.caller, description, data, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model override")
	cmd.Flags().StringVar(&opts.ChartType, "chart", "", "chart type (default bar)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "chart title")
	cmd.Flags().StringVar(&dataFile, "data", "", "JSON file with the data to chart")
	return cmd
}
