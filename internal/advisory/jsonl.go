package advisory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// readJSONLRows scans path line by line, invoking fn with each non-empty
// line's raw bytes. A missing file is not an error.
func readJSONLRows(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		fn(cp)
	}
	return scanner.Err()
}

func unmarshalRow(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
