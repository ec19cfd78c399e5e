// Command pixelate converts an image file into a pixel art rendition.
package main

import (
	"fmt"
	"image/color"
	"os"

	"github.com/setanarut/pixelate"
	"github.com/setanarut/pixelate/utils"
	"github.com/spf13/cobra"
)

var (
	flagOut      string
	flagHeight   int
	flagWidth    int
	flagFactor   int
	flagUpscale  []int
	flagDepth    int
	flagPalette  int
	flagColors   []string
	flagDither   string
	flagTile     int
	flagAlpha    float64
	flagNoBoost  bool
	flagPalOut   string
	flagFitImage string
)

var rootCmd = &cobra.Command{
	Use:   "pixelate <input>",
	Short: "Downsample images to reduced-color pixel art",
	Long: `pixelate fits a small color palette to an image, shrinks it with
gradient-weighted downsampling and recolors every cell through a
dithering strategy (none, naive, ordered, floyd, atkinson).

The palette can be inferred (--palette N) or supplied explicitly
as hex colors (--color "#rrggbb" repeated).`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagOut, "out", "o", "pixelated.png", "output image path")
	rootCmd.Flags().IntVar(&flagHeight, "height", 0, "target height (excludes --factor)")
	rootCmd.Flags().IntVar(&flagWidth, "width", 0, "target width (excludes --factor)")
	rootCmd.Flags().IntVarP(&flagFactor, "factor", "f", 0, "integer downscale factor")
	rootCmd.Flags().IntSliceVarP(&flagUpscale, "upscale", "u", []int{1}, "upscale factor, one value or row,col")
	rootCmd.Flags().IntVar(&flagDepth, "depth", 1, "downsampling iterations")
	rootCmd.Flags().IntVarP(&flagPalette, "palette", "p", 8, "number of inferred palette colors")
	rootCmd.Flags().StringArrayVarP(&flagColors, "color", "c", nil, "explicit palette color (hex), repeatable")
	rootCmd.Flags().StringVarP(&flagDither, "dither", "d", "none", "dither mode: none|naive|ordered|floyd|atkinson")
	rootCmd.Flags().IntVarP(&flagTile, "tile", "t", 3, "downsampling tile size")
	rootCmd.Flags().Float64Var(&flagAlpha, "alpha", 0.6, "alpha binarization threshold")
	rootCmd.Flags().BoolVar(&flagNoBoost, "no-boost", false, "disable contrast/saturation boost")
	rootCmd.Flags().StringVar(&flagPalOut, "save-palette", "", "also write the palette strip to this path")
	rootCmd.Flags().StringVar(&flagFitImage, "fit", "", "fit the palette on this image instead of the input")
}

func run(cmd *cobra.Command, args []string) error {
	opt, err := buildOptions()
	if err != nil {
		return err
	}

	src, err := utils.ReadImage(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	input := pixelate.FromImage(src)

	fitInput := input
	if flagFitImage != "" {
		ref, err := utils.ReadImage(flagFitImage)
		if err != nil {
			return fmt.Errorf("read fit image: %w", err)
		}
		fitInput = pixelate.FromImage(ref)
	}

	model, err := pixelate.Fit(fitInput, opt)
	if err != nil {
		return err
	}
	out, err := model.Transform(input)
	if err != nil {
		return err
	}
	if err := utils.SaveImage(out.ToImage(), flagOut); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if flagPalOut != "" {
		colors := model.Colors()
		palette := make([]color.Color, len(colors))
		for i, c := range colors {
			palette[i] = c
		}
		if err := utils.SavePalette(palette, 64, flagPalOut); err != nil {
			return fmt.Errorf("write palette: %w", err)
		}
	}
	return nil
}

func buildOptions() (pixelate.Options, error) {
	opt := pixelate.DefaultOptions()
	opt.Height = flagHeight
	opt.Width = flagWidth
	opt.Factor = flagFactor
	opt.Depth = flagDepth
	opt.TileSize = flagTile
	opt.AlphaThreshold = flagAlpha
	opt.Boost = !flagNoBoost

	switch len(flagUpscale) {
	case 1:
		opt.UpscaleRows, opt.UpscaleCols = flagUpscale[0], flagUpscale[0]
	case 2:
		opt.UpscaleRows, opt.UpscaleCols = flagUpscale[0], flagUpscale[1]
	default:
		return opt, fmt.Errorf("--upscale takes one value or row,col")
	}

	mode, err := pixelate.ParseDitherMode(flagDither)
	if err != nil {
		return opt, err
	}
	opt.Dither = mode

	if len(flagColors) > 0 {
		palette, err := utils.PaletteFromHex(flagColors)
		if err != nil {
			return opt, err
		}
		opt.Palette = palette
		opt.PaletteSize = 0
	} else {
		opt.PaletteSize = flagPalette
	}
	return opt, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pixelate:", err)
		os.Exit(1)
	}
}
