package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed [description...]",
	Short: "Embed descriptions and print the vectors as JSON",
	Long: `Embed descriptions given as arguments, or one per line on stdin when no
arguments are given, and print {"embeddings": [...]} to stdout.

Examples:
  txembed embed "Compra de alimentos"
  cat descriptions.txt | txembed embed`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	texts := args
	if len(texts) == 0 {
		lines, err := readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
		texts = lines
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx := context.Background()
	if rt.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Server.RequestTimeout)
		defer cancel()
	}

	embeddings, err := rt.client.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(map[string][][]float64{"embeddings": embeddings})
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}
