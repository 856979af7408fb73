package archiver

import "os"

func writeFakeOutput(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
