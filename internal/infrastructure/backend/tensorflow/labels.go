package tensorflow

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LabelMap converts the classifier's integer class ids to human-readable
// labels. It is built once at startup from two auxiliary artifact files:
// a protobuf-text mapping of class id to synset uid, and a tab-separated
// mapping of synset uid to human-readable name.
type LabelMap struct {
	names map[int]string
}

func LoadLabelMap(classMapPath, uidMapPath string) (*LabelMap, error) {
	uidFile, err := os.Open(uidMapPath)
	if err != nil {
		return nil, fmt.Errorf("open uid map: %w", err)
	}
	defer uidFile.Close()

	uidToHuman, err := parseUIDMap(uidFile)
	if err != nil {
		return nil, fmt.Errorf("parse uid map: %w", err)
	}

	classFile, err := os.Open(classMapPath)
	if err != nil {
		return nil, fmt.Errorf("open class map: %w", err)
	}
	defer classFile.Close()

	idToUID, err := parseClassMap(classFile)
	if err != nil {
		return nil, fmt.Errorf("parse class map: %w", err)
	}

	names := make(map[int]string, len(idToUID))
	for id, uid := range idToUID {
		human, ok := uidToHuman[uid]
		if !ok {
			return nil, fmt.Errorf("no human-readable label for uid %s", uid)
		}
		names[id] = human
	}
	return &LabelMap{names: names}, nil
}

// Name returns the label for a class id, or "" when the id is unknown.
func (m *LabelMap) Name(id int) string {
	return m.names[id]
}

func (m *LabelMap) Len() int {
	return len(m.names)
}

// parseUIDMap reads lines of the form "n01440764\ttench, Tinca tinca".
func parseUIDMap(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.IndexAny(line, " \t")
		if idx <= 0 {
			return nil, fmt.Errorf("malformed uid map line: %q", line)
		}
		uid := line[:idx]
		human := strings.TrimSpace(line[idx:])
		if human == "" {
			return nil, fmt.Errorf("empty label for uid %s", uid)
		}
		out[uid] = human
	}
	return out, scanner.Err()
}

// parseClassMap reads protobuf-text entries pairing "target_class" with the
// "target_class_string" that follows it.
func parseClassMap(r io.Reader) (map[int]string, error) {
	out := make(map[int]string)
	scanner := bufio.NewScanner(r)

	targetClass := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "target_class:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "target_class:"))
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("malformed target_class line: %q", line)
			}
			targetClass = id
		case strings.HasPrefix(line, "target_class_string:"):
			if targetClass < 0 {
				return nil, fmt.Errorf("target_class_string before target_class: %q", line)
			}
			v := strings.TrimSpace(strings.TrimPrefix(line, "target_class_string:"))
			out[targetClass] = strings.Trim(v, `"`)
			targetClass = -1
		}
	}
	return out, scanner.Err()
}
