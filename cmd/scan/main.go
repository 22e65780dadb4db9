package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
	"github.com/sdk-detect/sdk-detect-go/internal/detect"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
)

// scan 命令：对一个或多个包文件做一次性检测，
// 每个检出的 SDK 输出一行标识符。
func main() {
	var (
		signatureFile = flag.String("signatures", "", "path to a YAML signature catalog overlay (optional)")
		prefixDepth   = flag.Int("depth", fingerprint.DefaultMaxPrefixDepth, "max class prefix depth")
		workers       = flag.Int("workers", 1, "parallel extraction workers per bundle")
		verbose       = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: scan [flags] <package.apk|package.xapk> ...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.ErrorLevel)
	}

	cat, err := catalog.Load(*signatureFile, *prefixDepth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}

	extractor := fingerprint.NewExtractor(logger, *prefixDepth)
	matcher := detect.NewMatcher(logger)
	aggregator := detect.NewAggregator(extractor, matcher, cat, logger, *workers)

	ctx := context.Background()
	multi := flag.NArg() > 1
	exitCode := 0

	for _, path := range flag.Args() {
		analysis, err := aggregator.DetectFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan: %s: %v\n", path, err)
			exitCode = 1
			continue
		}

		for _, sdk := range analysis.SDKs {
			if multi {
				fmt.Printf("%s: %s\n", path, sdk)
			} else {
				fmt.Println(sdk)
			}
		}
	}

	os.Exit(exitCode)
}
