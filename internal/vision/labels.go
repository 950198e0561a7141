package vision

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrNoLabels       = errors.New("label file has no labels")
	ErrDuplicateLabel = errors.New("duplicate label")
)

// LoadLabels reads a newline-delimited class list. Order defines the output index mapping.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	seen := make(map[string]int)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		label := strings.TrimSpace(sc.Text())
		if label == "" {
			continue
		}
		if first, ok := seen[label]; ok {
			return nil, fmt.Errorf("%w %q on lines %d and %d", ErrDuplicateLabel, label, first, line)
		}
		seen[label] = line
		labels = append(labels, label)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoLabels)
	}
	return labels, nil
}
