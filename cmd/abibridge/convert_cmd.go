package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abibridge/abibridge/internal/convert"
)

// newConvertCommand builds the tool's single command: convert <in>
// <flist> <out>, the three mandatory positional arguments §6 of the
// spec requires and nothing else.
func newConvertCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input.o> <functions.list> <output.o>",
		Short: "Convert a 32-bit ET_REL object into a 64-bit one with ABI-bridging stubs",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConvert(root, args[0], args[1], args[2])
		},
	}

	return cmd
}

func runConvert(root *rootOptions, inPath, flistPath, outPath string) error {
	opts, err := loadOptions(root.configPath)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("convert: could not open input object: %w", err)
	}
	defer in.Close()

	flist, err := os.Open(flistPath)
	if err != nil {
		return fmt.Errorf("convert: could not open function list: %w", err)
	}
	defer flist.Close()

	// Convert fully into memory first: the output path must not be
	// created or truncated until conversion has actually succeeded, so a
	// rejected input never destroys a pre-existing file at outPath.
	var out bytes.Buffer

	n, err := convert.Convert(in, flist, &out, root.logger, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("convert: could not write output object: %w", err)
	}

	root.logger.Info("converted object", "bytes_written", n)
	colorSuccess.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, outPath)

	return nil
}
