package sandbox

import (
	"encoding/json"
	"path"
	"strings"
)

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parentDir(p string) string {
	return path.Dir(p)
}

func parseFileInfoLines(out string) []FileInfo {
	var infos []FileInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw struct {
			Name    string `json:"name"`
			Size    int64  `json:"size"`
			IsDir   string `json:"is_dir"`
			ModTime string `json:"mod_time"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    raw.Name,
			Size:    raw.Size,
			IsDir:   raw.IsDir == "d",
			ModTime: raw.ModTime,
		})
	}
	return infos
}
