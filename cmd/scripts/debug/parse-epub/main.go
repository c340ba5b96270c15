package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/epub"
)

func main() {
	log := logger.New()

	var opts struct {
		Full        bool   `short:"f" long:"full" description:"Resolve chapters and the table of contents"`
		CoverOutput string `short:"o" long:"cover-output" description:"A path to output the cover image"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-epub [--full] [--cover-output cover.jpg] <path/to/file.epub>")
		os.Exit(1)
	}

	mode := epub.ModeMetadata
	if opts.Full {
		mode = epub.ModeFull
	}
	pkg, err := epub.ParseFile(args[0], epub.Options{Mode: mode})
	if err != nil {
		log.Err(err).Fatal("epub parse error")
	}

	md := pkg.Metadata
	fmt.Printf("Title: %s\nAuthor: %s\nPublisher: %s\nLanguage: %s\nISBN: %s\nPublished: %s\nSubjects: %v\n",
		md.Title, md.Author, md.Publisher, md.Language, md.ISBN, md.Published, md.Subjects)
	fmt.Printf("Package Document: %s (resolved by %s, conformant %v)\n", pkg.PackageDocumentPath, pkg.ResolvedBy, pkg.Conformant)
	fmt.Printf("Chapters: %d\nCover: %s\n", pkg.ChapterCount, pkg.CoverPath)

	if opts.Full {
		for _, ch := range pkg.Chapters {
			fmt.Printf("  %3d. %s (%s)\n", ch.Order, ch.Title, ch.Path)
		}
		fmt.Println("Table of Contents:")
		printToc(pkg.Toc, 1)
	}

	if opts.CoverOutput != "" && pkg.CoverPath != "" {
		archive, err := container.Open(args[0])
		if err != nil {
			log.Err(err).Fatal("open archive error")
		}
		defer archive.Close()

		cover, err := epub.ExtractCover(archive, pkg, epub.DefaultMaxEntryBytes)
		if err != nil {
			log.Err(err).Fatal("extract cover error")
		}
		err = os.WriteFile(opts.CoverOutput, cover.Data, 0644)
		if err != nil {
			log.Err(err).Fatal("file write error")
		}
		fmt.Printf("Wrote %s cover (%dx%d) to %s\n", cover.MimeType, cover.Width, cover.Height, opts.CoverOutput)
	}
}

func printToc(entries []epub.TocEntry, depth int) {
	for _, e := range entries {
		fmt.Printf("%s- %s (%s)\n", strings.Repeat("  ", depth), e.Title, e.Href)
		printToc(e.Children, depth+1)
	}
}
