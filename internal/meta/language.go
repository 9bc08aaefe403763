package meta

import "strings"

// extensionLanguage is the fixed file-extension-to-language map used for
// metadata tagging. Unknown extensions resolve to "unknown".
var extensionLanguage = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "tsx",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "jsx",
	".py":    "python",
	".rs":    "rust",
	".rb":    "ruby",
	".java":  "java",
	".php":   "php",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".sh":    "shell",
	".sql":   "sql",
}

// DetectLanguage maps a file path's extension to a language name via the
// fixed extension table.
func DetectLanguage(path string) string {
	ext := strings.ToLower(pathExt(path))
	if lang, ok := extensionLanguage[ext]; ok {
		return lang
	}
	return "unknown"
}

func pathExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	// Guard against a dotfile with no extension, e.g. ".gitignore".
	slash := strings.LastIndexAny(path, "/\\")
	if i < slash+2 {
		return ""
	}
	return path[i:]
}
