package toolchain

import "strings"

var (
	// errorPattern matches the error lines of cc, gcc, clang, ld and the go
	// command.
	errorPattern = mustCompile(`(^|: )(fatal )?error: |^[^ :]+\.(c|h|go):[0-9]+(:[0-9]+)?: |^ld: |undefined reference to`)
	noisePattern = mustCompile(`: (warning|note): `)
)

// Diagnostics extracts the error lines from tool output.
func Diagnostics(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || noisePattern.MatchString(line) {
			continue
		}
		if errorPattern.MatchString(line) {
			lines = append(lines, line)
		}
	}
	return lines
}
