package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/modelhub/pkg/present"
)

func imagesCmd(g *globals, ui *ui) *cobra.Command {
	images := &cobra.Command{
		Use:   "images",
		Short: "Browse generated images",
	}

	var (
		page   int
		limit  int
		source string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List your generated images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Fetching images...")
			res, err := application.API.UserImages(cmd.Context(), page, limit, source)
			spin.Stop()
			if err != nil {
				return err
			}
			if len(res.Images) == 0 {
				fmt.Printf("%s No images yet\n", ui.info("[INFO]"))
				return nil
			}
			for _, img := range res.Images {
				fmt.Printf("%-26s %-18s %s\n", img.ID, img.CreatedAt.Local().Format("2006-01-02 15:04"), img.URL)
			}
			fmt.Println(ui.dim(fmt.Sprintf("page %d of %d", res.Page, res.TotalPages)))
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&limit, "limit", 20, "Images per page")
	list.Flags().StringVar(&source, "source", "all", "Filter by model category")

	download := &cobra.Command{
		Use:   "download <url>",
		Short: "Save an image as image.jpg in the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Downloading...")
			path, err := present.Download(cmd.Context(), application.API, args[0], application.Config.OutputDir)
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s Saved %s\n", ui.ok("[OK]"), path)
			return nil
		},
	}

	images.AddCommand(list, download)
	return images
}
