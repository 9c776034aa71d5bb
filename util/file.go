package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// WriteToFile writes the contents separated by new lines, creating the parent folder if needed
func WriteToFile(savePath string, content ...string) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	return os.WriteFile(savePath, []byte(strings.Join(content, "\n")+"\n"), 0644)
}

// AppendToFile appends every content as a separate line
func AppendToFile(savePath string, content ...string) error {
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// AppendJSONLine appends v as a single json line
func AppendJSONLine(savePath string, v interface{}) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return AppendToFile(savePath, string(bs))
}

func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, os.ModePerm)
}
