package ai

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// synsetPrefix matches the WordNet id in lines like "n01440764 tench, Tinca tinca".
var synsetPrefix = regexp.MustCompile(`^n\d{8}\s+`)

// LoadLabels reads one label per line; the line number is the class index.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	return ParseLabels(f)
}

// ParseLabels is LoadLabels over a reader.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		labels = append(labels, synsetPrefix.ReplaceAllString(line, ""))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file is empty")
	}
	return labels, nil
}
