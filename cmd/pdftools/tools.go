package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/pdftools/internal/export"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/services"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
	"github.com/Lllllllleong/pdftools/internal/workflow"
)

// toolRun is one CLI invocation of a conversion tool.
type toolRun struct {
	tool     validate.Tool
	paths    []string
	settings models.CompressionSettings
	// edit runs after the files are loaded, before conversion.
	edit func(o *workflow.Orchestrator) error
}

func (t toolRun) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	store, closeHistory, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeHistory()

	engine, closeEngine, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine()

	bar := newStateBar(stderr, string(t.tool))
	o, err := workflow.New(workflow.Config{
		Tool:        t.tool,
		Transformer: engine,
		History:     store,
		Settings:    t.settings,
		OnChange:    bar.Update,
	})
	if err != nil {
		return err
	}

	inputs, closeInputs, err := openInputs(t.paths)
	if err != nil {
		return err
	}
	notices, err := o.Add(ctx, inputs)
	closeInputs()
	if err != nil {
		return err
	}
	printNotices(stderr, notices)
	if o.State().Phase() == workflow.PhaseUpload {
		return errors.New("no acceptable input files")
	}

	if t.edit != nil {
		if err := t.edit(o); err != nil {
			return err
		}
	}

	state, convErr := o.Convert(ctx)
	bar.Finish()

	var results []*models.TransformResult
	switch s := state.(type) {
	case workflow.Complete:
		results = s.Results()
	case workflow.Upload:
		results = s.Kept
	}
	outDir := viper.GetString("output")
	for _, res := range results {
		path, err := export.WriteFile(outDir, res)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s (%s)", path, res.FormattedSize())
		if res.Settings != nil {
			line += fmt.Sprintf(", %s%% smaller than %s", models.CompressionRatio(res.OriginalSize, res.Size()), models.FormatFileSize(res.OriginalSize))
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	if convErr != nil {
		printNotices(stderr, o.Notices())
		return convErr
	}
	return nil
}

// openInputs opens every path. The returned func closes them.
func openInputs(paths []string) ([]workflow.Input, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	inputs := make([]workflow.Input, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		files = append(files, f)
		info, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
		inputs = append(inputs, workflow.Input{
			Name:     filepath.Base(p),
			MIMEType: mimeType,
			Size:     info.Size(),
			Body:     f,
		})
	}
	return inputs, closeAll, nil
}

func printNotices(w io.Writer, notices []*workflow.StageError) {
	for _, n := range notices {
		fmt.Fprintf(w, "skipped: %v\n", n)
	}
}

func newJPGToPDFCmd() *cobra.Command {
	var rotations []int
	cmd := &cobra.Command{
		Use:   "jpg-to-pdf IMAGE...",
		Short: "Combine images into one PDF, one page per image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toolRun{
				tool:  validate.JPGToPDF,
				paths: args,
				edit: func(o *workflow.Orchestrator) error {
					for i, deg := range rotations {
						for turns := transform.NormalizeRotation(deg) / 90; turns > 0; turns-- {
							if err := o.RotateRight(i); err != nil {
								return err
							}
						}
					}
					return nil
				},
			}.run(cmd)
		},
	}
	cmd.Flags().IntSliceVar(&rotations, "rotate", nil, "clockwise rotation in degrees per accepted image, e.g. 0,90")
	return cmd
}

func newPDFToJPGCmd() *cobra.Command {
	var pages string
	cmd := &cobra.Command{
		Use:   "pdf-to-jpg PDF",
		Short: "Render PDF pages as JPEG images",
		Long:  "Renders the selected pages. Several pages are written as one zip archive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toolRun{
				tool:  validate.PDFToJPG,
				paths: args,
				edit: func(o *workflow.Orchestrator) error {
					if pages == "" {
						return nil
					}
					selected, err := services.ParsePageList(pages)
					if err != nil {
						return err
					}
					return o.SelectPages(selected)
				},
			}.run(cmd)
		},
	}
	cmd.Flags().StringVar(&pages, "pages", "", "pages to convert, e.g. 1,3-5 (default: all)")
	return cmd
}

func newWordToPDFCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "word-to-pdf DOCUMENT...",
		Short: "Convert Word documents to PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toolRun{tool: validate.WordToPDF, paths: args}.run(cmd)
		},
	}
}

func newPDFToWordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pdf-to-word PDF...",
		Short: "Convert PDFs to Word documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toolRun{tool: validate.PDFToWord, paths: args}.run(cmd)
		},
	}
}

func newCompressCmd() *cobra.Command {
	var (
		preset  string
		quality int
		scale   float64
		method  string
	)
	cmd := &cobra.Command{
		Use:   "compress PDF...",
		Short: "Compress PDFs and record the savings in the history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := compressionSettings(preset, quality, scale, method)
			if err != nil {
				return err
			}
			return toolRun{tool: validate.CompressPDF, paths: args, settings: settings}.run(cmd)
		},
	}
	keys := make([]string, 0, len(models.Presets))
	for _, p := range models.Presets {
		keys = append(keys, p.Key)
	}
	cmd.Flags().StringVar(&preset, "preset", models.DefaultPreset.Key, "compression preset: "+strings.Join(keys, ", "))
	cmd.Flags().IntVar(&quality, "quality", 0, "image quality 1-100, overrides the preset")
	cmd.Flags().Float64Var(&scale, "scale", 0, "image scale in (0, 1], overrides the preset")
	cmd.Flags().StringVar(&method, "method", "", "lossless, balanced or aggressive, overrides the preset")
	return cmd
}

func formatRatio(ratio string) string {
	if _, err := strconv.ParseFloat(ratio, 64); err != nil {
		return "-"
	}
	return ratio + "%"
}
