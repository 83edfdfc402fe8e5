package tool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileDescriptors returns the file operation tools. Paths are taken as-is,
// absolute or relative to the process working directory, matching shell
// expectations.
func FileDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "read_file",
			Description: "Read contents of a text file.",
			Params: []ParamSpec{
				{Name: "path", Type: TypeString, Description: "Path to the file to read (absolute or relative)", Required: true},
			},
			Handler: handleReadFile,
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, creating or overwriting it.",
			Params: []ParamSpec{
				{Name: "path", Type: TypeString, Description: "Path to the file to write (will be created if it doesn't exist)", Required: true},
				{Name: "content", Type: TypeString, Description: "Text content to write to the file", Required: true},
			},
			Handler: handleWriteFile,
		},
		{
			Name:        "list_files",
			Description: "List files in a directory.",
			Params: []ParamSpec{
				{Name: "path", Type: TypeString, Description: "Directory path (default: current directory)"},
			},
			Handler: handleListFiles,
		},
		{
			Name:        "delete_file",
			Description: "Delete a file (not directories).",
			Params: []ParamSpec{
				{Name: "path", Type: TypeString, Description: "Path to the file to delete", Required: true},
			},
			Handler: handleDeleteFile,
		},
	}
}

func handleReadFile(_ context.Context, args Args) (string, error) {
	path := args.String("path")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File '%s' not found", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	return string(data), nil
}

func handleWriteFile(_ context.Context, args Args) (string, error) {
	path := args.String("path")
	content := args.String("content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("✓ Wrote %d bytes to %s", len(content), path), nil
}

func handleListFiles(_ context.Context, args Args) (string, error) {
	path := args.StringOr("path", ".")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: Directory '%s' not found", path), nil
		}
		return fmt.Sprintf("Error listing files: %v", err), nil
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: '%s' is not a directory", path), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Sprintf("Error listing files: %v", err), nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	lines := []string{fmt.Sprintf("Contents of %s:", path)}
	for _, entry := range entries {
		prefix := "📄"
		if entry.IsDir() {
			prefix = "📁"
		}
		lines = append(lines, fmt.Sprintf("%s %s", prefix, entry.Name()))
	}
	return strings.Join(lines, "\n"), nil
}

func handleDeleteFile(_ context.Context, args Args) (string, error) {
	path := args.String("path")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File '%s' not found", path), nil
		}
		return fmt.Sprintf("Error deleting file: %v", err), nil
	}
	if info.IsDir() {
		return fmt.Sprintf("Error deleting file: '%s' is a directory", path), nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Sprintf("Error deleting file: %v", err), nil
	}
	return fmt.Sprintf("✓ Deleted %s", path), nil
}
