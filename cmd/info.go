package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/recorder"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type fileReport struct {
	Name     string `yaml:"name"`
	Size     int64  `yaml:"size"`
	Rows     int    `yaml:"rows,omitempty"`
	ReadOnly bool   `yaml:"read_only"`
}

type attemptReport struct {
	Path     string           `yaml:"path"`
	Info     []artifact.Field `yaml:"info"`
	UserInfo []artifact.Field `yaml:"user_info,omitempty"`
	Files    []fileReport     `yaml:"files"`
}

var infoCmd = &cobra.Command{
	Use:   "info <attempt-dir>",
	Short: "Show the metadata and artifacts of a recorded attempt",
	Long: `Display info.csv, user_info.csv and every artifact of an attempt directory
with its size and, for tables, the number of rows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := describeAttemptDir(args[0])
		if err != nil {
			return err
		}

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			out, err := yaml.Marshal(report)
			if err != nil {
				return fmt.Errorf("error marshaling report: %w", err)
			}
			fmt.Print(string(out))
			return nil
		}

		fmt.Println(titleStyle.Render(report.Path))

		printSection("INFO")
		for _, f := range report.Info {
			printField(f.Key, f.Value)
		}
		if len(report.UserInfo) > 0 {
			printSection("USER INFO")
			for _, f := range report.UserInfo {
				printField(f.Key, f.Value)
			}
		}

		printSection("FILES")
		for _, f := range report.Files {
			detail := formatSize(f.Size)
			if f.Rows > 0 {
				detail += fmt.Sprintf(", %d rows", f.Rows)
			}
			name := f.Name
			if !f.ReadOnly {
				name += mutedStyle.Render(" (writable)")
			}
			fmt.Printf("  %s %s\n", keyStyle.Render(name), detail)
		}
		return nil
	},
}

func describeAttemptDir(dir string) (*attemptReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt: %w", err)
	}

	report := &attemptReport{Path: dir}
	if report.Info, err = artifact.ReadFields(filepath.Join(dir, recorder.InfoFile)); err != nil {
		return nil, fmt.Errorf("not an attempt directory: %w", err)
	}
	report.UserInfo, _ = artifact.ReadFields(filepath.Join(dir, recorder.UserInfoFile))

	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		report.Files = append(report.Files, fileReport{
			Name:     e.Name(),
			Size:     info.Size(),
			Rows:     countRows(filepath.Join(dir, e.Name())),
			ReadOnly: info.Mode().Perm()&0222 == 0,
		})
	}
	return report, nil
}

// countRows returns the row count of Arrow tables and pupil_data, zero for
// anything else.
func countRows(path string) int {
	switch {
	case filepath.Ext(path) == ".arrow":
		m, err := artifact.ReadMatrix(path)
		if err != nil {
			return 0
		}
		return len(m.Rows)
	case filepath.Base(path) == recorder.PupilDataFile:
		var data recorder.PupilData
		if err := artifact.ReadObject(path, &data); err != nil {
			return 0
		}
		return len(data.PupilPositions) + len(data.GazePositions)
	}
	return 0
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	infoCmd.Flags().Bool("yaml", false, "print the report as YAML")
}
